package stringset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDedups(t *testing.T) {
	s := New("a", "b", "a", "c", "b")
	assert.Equal(t, []string{"a", "b", "c"}, s.Slice())
	assert.Equal(t, 3, s.Len())
}

func TestAdd(t *testing.T) {
	s := New()
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.Equal(t, []string{"a", "b"}, s.Slice())
}

func TestContains(t *testing.T) {
	s := New("a", "b")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))
}

func TestEqual(t *testing.T) {
	type scenario struct {
		name     string
		a, b     *Set
		expected bool
	}
	scenarios := []scenario{
		{"same order", New("a", "b"), New("a", "b"), true},
		{"different order same members", New("a", "b"), New("b", "a"), true},
		{"different members", New("a", "b"), New("a", "c"), false},
		{"different length", New("a"), New("a", "b"), false},
		{"both empty", New(), New(), true},
	}
	for _, s := range scenarios {
		t.Run(s.name, func(t *testing.T) {
			assert.Equal(t, s.expected, Equal(s.a, s.b))
		})
	}
}

func TestUnion(t *testing.T) {
	got := Union(New("a", "b"), New("b", "c"))
	assert.True(t, Equal(New("a", "b", "c"), got))
}

func TestIntersect(t *testing.T) {
	got := Intersect(New("a", "b", "c"), New("b", "c", "d"))
	assert.True(t, Equal(New("b", "c"), got))
}

func TestDiff(t *testing.T) {
	got := Diff(New("a", "b", "c"), New("b"))
	assert.True(t, Equal(New("a", "c"), got))
}

func TestSymmetricDiff(t *testing.T) {
	got := SymmetricDiff(New("a", "b"), New("b", "c"))
	assert.True(t, Equal(New("a", "c"), got))
}

func TestFilterIn(t *testing.T) {
	// R3: filter_in(requested, mask) equals masked.
	requested := New("Phone", "Contacts", "Bluetooth")
	mask := New("Phone", "Contacts", "Camera", "Base")
	masked := requested.FilterIn(mask)
	assert.True(t, Equal(New("Phone", "Contacts"), masked))
}

func TestAssignReportsChange(t *testing.T) {
	var dst *Set
	assert.True(t, Assign(&dst, New("a", "b")))
	assert.True(t, Equal(New("a", "b"), dst))

	// R2: assigning the same content again is idempotent (no change).
	assert.False(t, Assign(&dst, New("b", "a")))

	assert.True(t, Assign(&dst, New("a")))
	assert.True(t, Equal(New("a"), dst))
}

func TestClone(t *testing.T) {
	orig := New("a", "b")
	clone := orig.Clone()
	clone.Add("c")
	assert.False(t, orig.Contains("c"))
	assert.True(t, clone.Contains("c"))
}
