package cve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_RightPadding(t *testing.T) {
	// 1.2.3 < 1.10.0
	assert.Equal(t, -1, Compare(ParseVersion("1.2.3"), ParseVersion("1.10.0")))
	// 1.2 == 1.2.0 after right-padding
	assert.Equal(t, 0, Compare(ParseVersion("1.2"), ParseVersion("1.2.0")))
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies("4.17.20", "4.17.21", OpLessThan))
	assert.False(t, Satisfies("4.17.21", "4.17.21", OpLessThan))
	assert.True(t, Satisfies("4.17.21", "4.17.21", OpLessOrEqual))
	assert.True(t, Satisfies("1.2", "1.2.0", OpLessOrEqual))
}

func TestUnpinned(t *testing.T) {
	assert.True(t, Unpinned(""))
	assert.True(t, Unpinned("*"))
	assert.False(t, Unpinned("1.0.0"))
}

func TestParseVersion_Tolerant(t *testing.T) {
	assert.Equal(t, [3]int{1, 0, 0}, ParseVersion("v1"))
	assert.Equal(t, [3]int{3, 0, 0}, ParseVersion("3-beta"))
}
