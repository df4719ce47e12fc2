package traceid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewShape(t *testing.T) {
	id := New()
	assert.True(t, Valid(id), "generated id %q must match the trace id shape", id)
}

func TestNewAtEncodesTimestamp(t *testing.T) {
	ts := time.Date(2026, 8, 26, 13, 45, 9, 0, time.UTC)
	id := NewAt(ts)
	assert.Equal(t, "tr-20260826-134509-", id[:19])
	assert.Len(t, id, 25)
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := New()
		assert.False(t, seen[id], "duplicate trace id %q", id)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"tr-20260826-134509-a1b2c3", true},
		{"tr-20260826-134509-A1B2C3", false}, // uppercase suffix
		{"tr-2026826-134509-a1b2c3", false},  // short date
		{"20260826-134509-a1b2c3", false},    // missing prefix
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.in), "Valid(%q)", tt.in)
	}
}
