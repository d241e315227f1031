package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameSet_OrderIndependent(t *testing.T) {
	assert.True(t, sameSet([]string{"A:B", "B:C"}, []string{"B:C", "A:B"}))
}

func TestSameSet_DifferentLength(t *testing.T) {
	assert.False(t, sameSet([]string{"A:B"}, []string{"A:B", "B:C"}))
}

func TestSameSet_DifferentMembers(t *testing.T) {
	assert.False(t, sameSet([]string{"A:B", "B:C"}, []string{"A:B", "C:D"}))
}

func TestSameSet_BothEmpty(t *testing.T) {
	assert.True(t, sameSet(nil, nil))
}
