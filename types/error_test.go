package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ErrorString(t *testing.T) {
	t.Parallel()
	err := NewError(ErrValidation, "participants cannot be empty")
	assert.Equal(t, "[VALIDATION] participants cannot be empty", err.Error())

	cause := errors.New("connection refused")
	err = NewError(ErrProvider, "generation failed").WithCause(cause)
	assert.Equal(t, "[PROVIDER] generation failed: connection refused", err.Error())
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := NewError(ErrProvider, "wrapped").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_Builders(t *testing.T) {
	t.Parallel()
	err := NewError(ErrProvider, "quota").
		WithHTTPStatus(429).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, 429, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.Equal(t, "openai", err.Provider)
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ErrConflict, GetErrorCode(NewError(ErrConflict, "run active")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))

	// Unwraps through fmt wrapping.
	wrapped := fmt.Errorf("outer: %w", NewError(ErrNotFound, "no such task"))
	assert.Equal(t, ErrNotFound, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrNotFound))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(NewError(ErrProvider, "x").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrProvider, "x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestNewErrorf(t *testing.T) {
	t.Parallel()
	err := NewErrorf(ErrNotFound, "personality %q not found", "atlas")
	assert.Equal(t, `[NOT_FOUND] personality "atlas" not found`, err.Error())
}

func TestMessage_IsAI(t *testing.T) {
	t.Parallel()
	assert.True(t, Message{SenderID: "athena"}.IsAI())
	assert.False(t, Message{SenderID: SenderUser}.IsAI())
	assert.False(t, Message{}.IsAI())
}
