package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// A partitioner input set split across two live members must produce two
// disjoint, non-empty assignments whose union is the input set.
func TestAssignSet_DisjointUnion(t *testing.T) {
	set := []string{"A:B", "B:C", "C:A"}
	members := []string{"member-0000000001", "member-0000000002"}

	a := assignSet(set, members, members[0])
	b := assignSet(set, members, members[1])

	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)

	union := append(append([]string{}, a...), b...)
	assert.ElementsMatch(t, set, union)

	overlap := map[string]bool{}
	for _, x := range a {
		overlap[x] = true
	}
	for _, x := range b {
		assert.False(t, overlap[x], "member 2 was assigned %q, already assigned to member 1", x)
	}
}

func TestAssignSet_Deterministic(t *testing.T) {
	set := []string{"A:B", "B:C", "C:D", "D:E", "E:F"}
	members := []string{"m0", "m1", "m2"}

	first := assignSet(set, members, "m1")
	second := assignSet(set, members, "m1")
	assert.Equal(t, first, second)
}

func TestAssignSet_UnknownSelf(t *testing.T) {
	set := []string{"A:B"}
	members := []string{"m0", "m1"}
	assert.Nil(t, assignSet(set, members, "not-a-member"))
}
