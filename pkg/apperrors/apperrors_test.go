package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	type scenario struct {
		kind     Kind
		expected string
	}
	scenarios := []scenario{
		{KindNotFound, "NotFound"},
		{KindInvalid, "Invalid"},
		{KindDenied, "Denied"},
		{KindTransient, "Transient"},
		{KindConflict, "Conflict"},
		{Kind(99), "Unknown"},
	}
	for _, s := range scenarios {
		assert.Equal(t, s.expected, s.kind.String())
	}
}

func TestNewAndError(t *testing.T) {
	err := New(KindNotFound, "manifest missing")
	assert.Equal(t, "NotFound: manifest missing", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(KindInvalid, "uid %d out of range", 42)
	assert.Equal(t, "Invalid: uid 42 out of range", err.Error())
}

func TestIs(t *testing.T) {
	err := New(KindDenied, "not allowed")
	assert.True(t, Is(err, KindDenied))
	assert.False(t, Is(err, KindNotFound))

	wrapped := fmt.Errorf("wrapping: %w", err)
	assert.True(t, Is(wrapped, KindDenied))

	assert.False(t, Is(fmt.Errorf("plain"), KindDenied))
}

func TestKindOf(t *testing.T) {
	err := New(KindTransient, "disk full")
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTransient, kind)

	wrapped := fmt.Errorf("wrapping: %w", err)
	kind, ok = KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindTransient, kind)

	_, ok = KindOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}
