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

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
)

// Snapshot is an immutable view of a State taken before a step runs.
// The zero Snapshot is empty and returns nil for every field.
type Snapshot struct {
	schema *Schema
	values map[string]any
}

// Get returns the value of field, falling back to the declared default and
// then to the zero value of the field type. Undeclared fields return nil.
func (s Snapshot) Get(field string) any {
	if v, ok := s.values[field]; ok {
		return v
	}
	if s.schema == nil {
		return nil
	}
	f, ok := s.schema.Field(field)
	if !ok {
		return nil
	}
	if f.Default != nil {
		return cloneValue(reflect.ValueOf(f.Default)).Interface()
	}
	return reflect.Zero(f.Type).Interface()
}

// Lookup reports whether field has been written in this run.
func (s Snapshot) Lookup(field string) (any, bool) {
	v, ok := s.values[field]
	return v, ok
}

// Schema returns the schema the snapshot was taken from.
func (s Snapshot) Schema() *Schema { return s.schema }

// Hash is the hex-encoded sha256 of the JSON form of the written fields.
// It returns "" when a value cannot be encoded.
func (s Snapshot) Hash() string {
	raw, err := json.Marshal(s.values)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}

// Value returns field from s as a T, or the zero T when absent or of another type.
func Value[T any](s Snapshot, field string) T {
	v, _ := s.Get(field).(T)
	return v
}
