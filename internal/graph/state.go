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
	"reflect"
	"sort"
	"sync"
)

// Update is the partial state a step returns. Keys must be declared fields.
type Update map[string]any

// State is the mutable container owned by one Run.
// All mutation goes through Merge; steps only ever see Snapshots.
type State struct {
	mu     sync.RWMutex
	schema *Schema
	values map[string]reflect.Value
}

// NewState creates an empty container for schema and merges initial into it.
func NewState(schema *Schema, initial Update) (*State, error) {
	st := &State{schema: schema, values: make(map[string]reflect.Value)}
	if err := st.Merge(initial); err != nil {
		return nil, err
	}
	return st, nil
}

// Merge applies every key of u with its field's policy.
// It is atomic: if any key fails, the state is left untouched.
func (s *State) Merge(u Update) error {
	if len(u) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// deterministic error reporting for multi-key updates
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	staged := make(map[string]reflect.Value, len(u))
	for _, k := range keys {
		f, ok := s.schema.Field(k)
		if !ok {
			return &UnknownFieldError{Field: k}
		}
		v, err := f.check(u[k])
		if err != nil {
			return err
		}
		if f.Policy == Append {
			v = concat(f.Type, s.values[k], v)
		}
		staged[k] = v
	}
	for k, v := range staged {
		s.values[k] = v
	}
	return nil
}

// Get returns the current value of field, or its declared default.
func (s *State) Get(field string) any {
	return s.Snapshot().Get(field)
}

// Snapshot returns a deep copy of the current values, so a step that
// mutates what it reads cannot change the state it was given.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = cloneValue(v).Interface()
	}
	return Snapshot{schema: s.schema, values: values}
}

// concat returns a new slice of type t holding a followed by b.
func concat(t reflect.Type, a, b reflect.Value) reflect.Value {
	n := 0
	if a.IsValid() {
		n += a.Len()
	}
	if b.IsValid() {
		n += b.Len()
	}
	out := reflect.MakeSlice(t, 0, n)
	if a.IsValid() {
		out = reflect.AppendSlice(out, a)
	}
	if b.IsValid() {
		out = reflect.AppendSlice(out, b)
	}
	return out
}

func cloneValue(v reflect.Value) reflect.Value {
	return deepClone(v, map[uintptr]reflect.Value{})
}

// deepClone copies v through slices, arrays, maps, pointers, interfaces and
// exported struct fields. Unexported fields are copied by value. seen keeps
// shared and cyclic pointers shared in the copy.
func deepClone(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepClone(v.Index(i), seen))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepClone(v.Index(i), seen))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepClone(iter.Value(), seen))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if c, ok := seen[v.Pointer()]; ok && c.Type() == v.Type() {
			return c
		}
		out := reflect.New(v.Type().Elem())
		seen[v.Pointer()] = out
		out.Elem().Set(deepClone(v.Elem(), seen))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepClone(v.Elem(), seen))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(deepClone(v.Field(i), seen))
			}
		}
		return out
	}
	return v
}
