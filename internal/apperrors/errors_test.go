package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  *NotFoundError
		want string
	}{
		{"message wins", NewNotFoundError("entry", "Entry not found"), "Entry not found"},
		{"resource only", NewNotFoundError("frame", ""), "frame not found"},
		{"empty", &NotFoundError{}, "resource not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.True(t, errors.Is(tt.err, ErrNotFound))
		})
	}
}

func TestWrappedErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", NewNotFoundError("entry", ""))
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrValidation)

	v := fmt.Errorf("delete: %w", NewValidationError("timestamps", "No timestamps provided"))
	assert.ErrorIs(t, v, ErrValidation)
	assert.EqualError(t, v, "delete: No timestamps provided")
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ProviderError{Provider: "openai", Kind: KindTransport, Body: "bad gateway", Err: cause}

	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "openai provider transport error: connection refused: bad gateway", err.Error())

	var pe *ProviderError
	assert.True(t, errors.As(fmt.Errorf("enhance: %w", err), &pe))
	assert.Equal(t, KindTransport, pe.Kind)
}
