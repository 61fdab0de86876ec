/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Prompt interface {
	String() string
}

type TextPrompt string

func (p TextPrompt) String() string {
	return string(p)
}

func NewTextPrompt(content string) Prompt {
	return TextPrompt(content)
}

//go:embed prompts.yaml
var defaultPrompts []byte

// Set is a named collection of prompt templates.
type Set struct {
	templates map[string]*template.Template
}

// Default returns the built-in prompts.
func Default() (*Set, error) {
	return Parse(defaultPrompts)
}

// Parse reads a YAML mapping of prompt name to template text.
func Parse(data []byte) (*Set, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse prompts")
	}
	s := &Set{templates: make(map[string]*template.Template, len(raw))}
	for name, text := range raw {
		tpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "parse prompt %q", name)
		}
		s.templates[name] = tpl
	}
	return s, nil
}

// Load returns the built-in prompts overridden by the ones in path.
// An empty path returns the built-in prompts.
func Load(path string) (*Set, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read prompts")
	}
	override, err := Parse(bs)
	if err != nil {
		return nil, err
	}
	for name, tpl := range override.templates {
		s.templates[name] = tpl
	}
	return s, nil
}

// Require fails if any of names is missing.
func (s *Set) Require(names ...string) error {
	for _, n := range names {
		if _, ok := s.templates[n]; !ok {
			return fmt.Errorf("prompt %q is not defined", n)
		}
	}
	return nil
}

// Render executes the named template with data.
func (s *Set) Render(name string, data any) (Prompt, error) {
	tpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt %q is not defined", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(err, "render prompt %q", name)
	}
	return TextPrompt(buf.String()), nil
}

// Names lists the defined prompts.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
