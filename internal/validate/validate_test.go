package validate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/metalagman/socratic/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id"   validate:"required,uuid"`
	Name string `json:"name" validate:"required,notblank,max=8"`
	Kind string `json:"kind,omitempty" validate:"omitempty,oneof=a b"`
}

func TestStruct(t *testing.T) {
	t.Parallel()
	v := New()
	id := uuid.NewString()

	tests := []struct {
		name   string
		in     sample
		field  string
		reason string
	}{
		{"valid", sample{ID: id, Name: "x"}, "", ""},
		{"missing id", sample{Name: "x"}, "id", "is required"},
		{"bad id", sample{ID: "nope", Name: "x"}, "id", "must be a UUID"},
		{"blank name", sample{ID: id, Name: " \t"}, "name", "is required"},
		{"long name", sample{ID: id, Name: "abcdefghij"}, "name", "must be at most 8 characters"},
		{"bad kind", sample{ID: id, Name: "x", Kind: "c"}, "kind", "must be one of a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Struct(tt.in)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.reason, ve.Reason)
		})
	}
}

func TestID(t *testing.T) {
	t.Parallel()
	v := New()
	require.NoError(t, v.ID("session_id", uuid.NewString()))

	err := v.ID("session_id", "")
	assert.EqualError(t, err, "invalid session_id: is required")
	err = v.ID("session_id", "123")
	assert.EqualError(t, err, "invalid session_id: must be a UUID")
}
