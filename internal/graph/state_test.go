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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		FieldOf[string]("question", Overwrite),
		FieldOf[[]string]("docs", Append),
		FieldOf[int]("count", Overwrite).WithDefault(7),
		FieldOf[[]string]("tags", Overwrite),
	)
	require.NoError(t, err)
	return s
}

func TestNewSchema_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"empty name", []Field{FieldOf[string]("", Overwrite)}},
		{"duplicate", []Field{FieldOf[string]("a", Overwrite), FieldOf[int]("a", Overwrite)}},
		{"append non slice", []Field{FieldOf[string]("a", Append)}},
		{"bad default", []Field{FieldOf[string]("a", Overwrite).WithDefault(1)}},
		{"no type", []Field{{Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.fields...)
			require.Error(t, err)
		})
	}
}

func TestState_Merge(t *testing.T) {
	st, err := NewState(testSchema(t), Update{"question": "q0", "docs": []string{"a"}})
	require.NoError(t, err)

	require.NoError(t, st.Merge(Update{"question": "q1", "docs": []string{"b", "c"}}))
	require.NoError(t, st.Merge(Update{"docs": []string{"d"}}))

	snap := st.Snapshot()
	assert.Equal(t, "q1", snap.Get("question"))
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, Value[[]string](snap, "docs")); diff != "" {
		t.Errorf("docs mismatch (-want +got):\n%s", diff)
	}
}

func TestState_MergeOverwriteSlice(t *testing.T) {
	st, err := NewState(testSchema(t), Update{"tags": []string{"x", "y"}})
	require.NoError(t, err)
	require.NoError(t, st.Merge(Update{"tags": []string{"z"}}))
	assert.Equal(t, []string{"z"}, st.Get("tags"))
}

func TestState_MergeErrors(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown field",
			update: Update{"question": "changed", "nope": 1},
			check: func(t *testing.T, err error) {
				var target *UnknownFieldError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "nope", target.Field)
			},
		},
		{
			name:   "append non slice",
			update: Update{"docs": "single"},
			check: func(t *testing.T, err error) {
				var target *MergeTypeError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "docs", target.Field)
				assert.Equal(t, Append, target.Policy)
			},
		},
		{
			name:   "append wrong element type",
			update: Update{"docs": []int{1}},
			check: func(t *testing.T, err error) {
				var target *MergeTypeError
				require.True(t, errors.As(err, &target))
			},
		},
		{
			name:   "overwrite wrong type",
			update: Update{"question": 42},
			check: func(t *testing.T, err error) {
				var target *MergeTypeError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, "question", target.Field)
			},
		},
		{
			name:   "nil into non nillable",
			update: Update{"count": nil},
			check: func(t *testing.T, err error) {
				var target *MergeTypeError
				require.True(t, errors.As(err, &target))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewState(testSchema(t), Update{"question": "orig", "docs": []string{"a"}})
			require.NoError(t, err)
			before := st.Snapshot().Hash()

			err = st.Merge(tt.update)
			require.Error(t, err)
			tt.check(t, err)

			// a failed merge leaves the state untouched
			assert.Equal(t, before, st.Snapshot().Hash())
			assert.Equal(t, "orig", st.Get("question"))
		})
	}
}

func TestSnapshot_Defaults(t *testing.T) {
	st, err := NewState(testSchema(t), nil)
	require.NoError(t, err)
	snap := st.Snapshot()

	assert.Equal(t, 7, snap.Get("count"))
	assert.Equal(t, "", snap.Get("question"))
	assert.Nil(t, snap.Get("undeclared"))
	_, ok := snap.Lookup("count")
	assert.False(t, ok)
	assert.Equal(t, 0, Value[int](snap, "question"))
}

func TestSnapshot_Isolation(t *testing.T) {
	st, err := NewState(testSchema(t), Update{"docs": []string{"a", "b"}})
	require.NoError(t, err)

	snap := st.Snapshot()
	docs := Value[[]string](snap, "docs")
	docs[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, st.Get("docs"))
}

type note struct {
	Text string
	Meta map[string]any
	Next *note
}

func noteSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(FieldOf[[]*note]("notes", Append))
	require.NoError(t, err)
	return s
}

func TestSnapshot_PointerIsolation(t *testing.T) {
	shared := &note{Text: "shared"}
	first := &note{Text: "original", Meta: map[string]any{"source": "a.md"}, Next: shared}
	st, err := NewState(noteSchema(t), Update{"notes": []*note{first, shared}})
	require.NoError(t, err)

	notes := Value[[]*note](st.Snapshot(), "notes")
	require.Len(t, notes, 2)
	// pointers shared inside the value stay shared inside the copy
	assert.Same(t, notes[0].Next, notes[1])
	notes[0].Text = "mutated"
	notes[0].Meta["source"] = "b.md"
	notes[1].Text = "mutated"

	assert.Equal(t, "original", first.Text)
	assert.Equal(t, "a.md", first.Meta["source"])
	assert.Equal(t, "shared", shared.Text)
	again := Value[[]*note](st.Snapshot(), "notes")
	assert.Equal(t, "original", again[0].Text)
	assert.Equal(t, "shared", again[0].Next.Text)
}

func TestSnapshot_CyclicPointer(t *testing.T) {
	loop := &note{Text: "loop"}
	loop.Next = loop
	st, err := NewState(noteSchema(t), Update{"notes": []*note{loop}})
	require.NoError(t, err)

	got := Value[[]*note](st.Snapshot(), "notes")
	require.Len(t, got, 1)
	assert.NotSame(t, loop, got[0])
	assert.Same(t, got[0], got[0].Next)
}

func TestSnapshot_Hash(t *testing.T) {
	a, err := NewState(testSchema(t), Update{"question": "q", "docs": []string{"x"}})
	require.NoError(t, err)
	b, err := NewState(testSchema(t), Update{"docs": []string{"x"}, "question": "q"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.Snapshot().Hash())
	assert.Equal(t, a.Snapshot().Hash(), b.Snapshot().Hash())

	require.NoError(t, b.Merge(Update{"question": "other"}))
	assert.NotEqual(t, a.Snapshot().Hash(), b.Snapshot().Hash())
}
