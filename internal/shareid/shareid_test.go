package shareid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abcd1234", true},
		{"A-b_9", true},
		{strings.Repeat("x", 64), true},
		{strings.Repeat("x", 65), false},
		{"", false},
		{"has space", false},
		{"a/b", false},
		{"dot.dot", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.id), tt.id)
	}
}

func TestDerive(t *testing.T) {
	assert.Equal(t, "abcdef12", Derive("ses_0123456789abcdef12"))
	assert.Equal(t, "short", Derive("short"))
	assert.True(t, Valid(Derive("ses_01JABCDEFGHJKMNPQRSTVWXYZ")))
}
