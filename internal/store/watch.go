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

package store

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// WatchDir calls fn for every file event under dir until ctx is done.
// Sub-directories existing at call time are watched too.
func WatchDir(ctx context.Context, dir string, fn func(op fsnotify.Op, file string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "watch %s", dir)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				fn(ev.Op, ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watch %s: %v", dir, err)
			}
		}
	}()
	return nil
}

// Sync keeps the index in step with the files under dir: written files are
// re-indexed, removed ones dropped.
func Sync(ctx context.Context, dir string, st *Store, in *Ingester) error {
	return WatchDir(ctx, dir, func(op fsnotify.Op, file string) {
		if !Supported(file) {
			return
		}
		switch {
		case op&fsnotify.Write != 0 || op&fsnotify.Create != 0:
			doc, err := LoadFile(file)
			if err != nil {
				log.Error("reload %s: %v", file, err)
				return
			}
			st.DeleteSource(file)
			if _, err := in.Index(ctx, []*schema.Document{doc}); err != nil {
				log.Error("reindex %s: %v", file, err)
			}
		case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
			n := st.DeleteSource(file)
			log.Info("dropped %d chunk(s) of %s", n, file)
		}
	})
}
