package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Format(t *testing.T) {
	id := New(PrefixAssessment)
	assert.True(t, strings.HasPrefix(id, "asm_"))
	assert.Len(t, strings.TrimPrefix(id, "asm_"), 12)
	assert.True(t, Valid(id))
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(PrefixFinding)
		assert.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		New(PrefixFinding):     true,
		New(PrefixAgentLog):    true,
		New(PrefixTunnel):      true,
		New(PrefixRequest):     true,
		"asm_zzzzzzzzzzzz":     false, // not hex
		"bogus_abcdefabcdef":   false, // unknown prefix
		"asm_abc":              false, // too short
		"asm":                  false, // no separator
		"":                     false,
	}
	for id, want := range cases {
		assert.Equal(t, want, Valid(id), "id=%q", id)
	}
}
