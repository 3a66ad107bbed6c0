package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Type string `json:"type" validate:"required"`
}

type sample struct {
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currencyCode" validate:"omitempty,len=3"`
	Email    string `json:"email" validate:"omitempty,email"`
	Inner    *inner `json:"inner" validate:"required"`
}

func TestDescribe(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		input    sample
		expected string
	}{
		{
			name:     "missing_required_field",
			input:    sample{Inner: &inner{Type: "CARD"}},
			expected: "name is required",
		},
		{
			name:     "wrong_length",
			input:    sample{Name: "shop", Currency: "EURO", Inner: &inner{Type: "CARD"}},
			expected: "currencyCode must be 3 characters long",
		},
		{
			name:     "bad_email",
			input:    sample{Name: "shop", Email: "not-an-email", Inner: &inner{Type: "CARD"}},
			expected: "email must be a valid email address",
		},
		{
			name:     "missing_nested_struct",
			input:    sample{Name: "shop"},
			expected: "inner is required",
		},
		{
			name:     "missing_nested_field",
			input:    sample{Name: "shop", Inner: &inner{}},
			expected: "inner.type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.expected, Describe(err))
		})
	}
}

func TestDescribe_NonValidationError(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestNew_ValidStruct(t *testing.T) {
	err := New().Struct(sample{Name: "shop", Currency: "BRL", Inner: &inner{Type: "CARD"}})
	assert.NoError(t, err)
}
