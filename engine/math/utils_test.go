package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), Clamp(uint32(1), 5, 10))
	assert.Equal(t, uint32(10), Clamp(uint32(12), 5, 10))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestClampCount(t *testing.T) {
	tests := []struct {
		name                string
		requested, min, max uint32
		want                uint32
	}{
		{"within range", 3, 2, 4, 3},
		{"above max", 3, 1, 2, 2},
		{"below min", 1, 2, 8, 2},
		{"unbounded max", 6, 2, 0, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampCount(tt.requested, tt.min, tt.max))
		})
	}
}
