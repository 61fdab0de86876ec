// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the process-wide logger. Messages are printf-style.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var std = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLogLevel sets the minimum level that is written.
func SetLogLevel(level Level) {
	switch level {
	case DebugLevel:
		std.SetLevel(logrus.DebugLevel)
	case InfoLevel:
		std.SetLevel(logrus.InfoLevel)
	case WarnLevel:
		std.SetLevel(logrus.WarnLevel)
	default:
		std.SetLevel(logrus.ErrorLevel)
	}
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// IsDebug reports whether debug messages are written.
func IsDebug() bool {
	return std.IsLevelEnabled(logrus.DebugLevel)
}

func Debug(format string, args ...any) {
	std.Debugf(format, args...)
}

func Info(format string, args ...any) {
	std.Infof(format, args...)
}

func Warn(format string, args ...any) {
	std.Warnf(format, args...)
}

func Error(format string, args ...any) {
	std.Errorf(format, args...)
}
