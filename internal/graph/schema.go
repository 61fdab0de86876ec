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
	"fmt"
	"reflect"
)

// MergePolicy decides how an update to a field is combined with its current value.
type MergePolicy int

const (
	// Overwrite replaces the current value.
	Overwrite MergePolicy = iota
	// Append concatenates the incoming slice to the current one.
	Append
)

func (p MergePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Field declares one key of the state.
type Field struct {
	Name    string
	Type    reflect.Type
	Policy  MergePolicy
	Default any
}

// FieldOf declares a field whose values are of type T.
func FieldOf[T any](name string, policy MergePolicy) Field {
	return Field{Name: name, Type: reflect.TypeFor[T](), Policy: policy}
}

// WithDefault returns a copy of f whose Get falls back to v.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

// Schema is the static set of fields a graph's state may hold.
// It is immutable once created.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema validates the field declarations and returns the schema.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field name must not be empty")
		}
		if f.Type == nil {
			return nil, fmt.Errorf("schema: field %q has no type", f.Name)
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		if f.Policy == Append && f.Type.Kind() != reflect.Slice {
			return nil, fmt.Errorf("schema: append field %q must be a slice, got %s", f.Name, f.Type)
		}
		if f.Default != nil && !reflect.TypeOf(f.Default).AssignableTo(f.Type) {
			return nil, fmt.Errorf("schema: default of field %q is %T, want %s", f.Name, f.Default, f.Type)
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on invalid declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.order...)
}

// check validates v against the declaration of f and returns the value to store.
func (f Field) check(v any) (reflect.Value, error) {
	if v == nil {
		switch f.Type.Kind() {
		case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Interface:
			return reflect.Zero(f.Type), nil
		}
		return reflect.Value{}, &MergeTypeError{Field: f.Name, Policy: f.Policy, Want: f.Type.String(), Got: "nil"}
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(f.Type) {
		return reflect.Value{}, &MergeTypeError{Field: f.Name, Policy: f.Policy, Want: f.Type.String(), Got: rv.Type().String()}
	}
	out := reflect.New(f.Type).Elem()
	out.Set(rv)
	return out, nil
}
