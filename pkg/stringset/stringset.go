// Package stringset implements an ordered set of short strings with
// duplicate suppression and a change-detecting assign. It is the primitive
// used for permission semantics throughout sailjaild: every comparison
// between a requested, masked or granted permission list goes through this
// package so that "nothing changed" is cheap to detect.
package stringset

import "github.com/samber/lo"

// Set is an ordered, duplicate-free collection of strings. The zero value is
// an empty set ready to use. Order reflects insertion order and is not part
// of equality.
type Set struct {
	items []string
	index map[string]int
}

// New builds a Set from the given items, dropping duplicates and keeping the
// first occurrence's position.
func New(items ...string) *Set {
	s := &Set{}
	s.addAll(items)
	return s
}

func (s *Set) ensure() {
	if s.index == nil {
		s.index = make(map[string]int)
	}
}

func (s *Set) addAll(items []string) {
	s.ensure()
	for _, item := range items {
		if _, ok := s.index[item]; ok {
			continue
		}
		s.index[item] = len(s.items)
		s.items = append(s.items, item)
	}
}

// Add inserts item if not already present. Returns true if the set changed.
func (s *Set) Add(item string) bool {
	s.ensure()
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = len(s.items)
	s.items = append(s.items, item)
	return true
}

// Contains reports whether item is a member of the set.
func (s *Set) Contains(item string) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[item]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Slice returns the members in insertion order. The caller must not mutate
// the returned slice.
func (s *Set) Slice() []string {
	if s == nil {
		return nil
	}
	return s.items
}

// Equal reports whether a and b contain the same members, irrespective
// of order.
func Equal(a, b *Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, item := range a.Slice() {
		if !b.Contains(item) {
			return false
		}
	}
	return true
}

// Union returns a new Set containing every member of a or b.
func Union(a, b *Set) *Set {
	out := New(a.Slice()...)
	out.addAll(b.Slice())
	return out
}

// Intersect returns a new Set containing only members present in both a and
// b, preserving a's order. This is the operation spec.md calls filter_in.
func Intersect(a, b *Set) *Set {
	kept := lo.Filter(a.Slice(), func(item string, _ int) bool {
		return b.Contains(item)
	})
	return New(kept...)
}

// FilterIn returns s ∩ mask, preserving s's order. Equivalent to
// Intersect(s, mask); kept as a method for call-site readability at use
// sites that read like "requested.FilterIn(mask)".
func (s *Set) FilterIn(mask *Set) *Set {
	return Intersect(s, mask)
}

// Diff returns the members of a not present in b.
func Diff(a, b *Set) *Set {
	kept := lo.Filter(a.Slice(), func(item string, _ int) bool {
		return !b.Contains(item)
	})
	return New(kept...)
}

// SymmetricDiff returns the members present in exactly one of a or b.
func SymmetricDiff(a, b *Set) *Set {
	return Union(Diff(a, b), Diff(b, a))
}

// Assign replaces the contents of *dst with src and reports whether the
// contents actually changed (by set equality, not by reference). A nil dst
// pointer target is treated as an empty set for comparison. This is the
// primitive every mutator in pkg/settings and pkg/control builds on so that
// "no-op" recomputations never trigger a spurious change notification.
func Assign(dst **Set, src *Set) bool {
	if src == nil {
		src = New()
	}
	if *dst == nil {
		*dst = New()
	}
	if Equal(*dst, src) {
		return false
	}
	*dst = New(src.Slice()...)
	return true
}

// Clone returns an independent copy of s.
func (s *Set) Clone() *Set {
	return New(s.Slice()...)
}
