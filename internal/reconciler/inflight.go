package reconciler

import (
	"github.com/google/btree"
)

// InFlightSet tracks resource group names with a delete in flight.
// It is not safe for concurrent use; passes are serialized by the Coordinator.
type InFlightSet struct {
	names *btree.BTreeG[string]
}

// NewInFlightSet creates a set, optionally pre-populated.
func NewInFlightSet(names ...string) *InFlightSet {
	s := &InFlightSet{
		names: btree.NewG[string](16, func(a, b string) bool { return a < b }),
	}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Contains reports whether name is tracked.
func (s *InFlightSet) Contains(name string) bool {
	return s.names.Has(name)
}

// Add starts tracking name.
func (s *InFlightSet) Add(name string) {
	s.names.ReplaceOrInsert(name)
}

// Remove stops tracking name.
func (s *InFlightSet) Remove(name string) {
	s.names.Delete(name)
}

// Len returns the number of tracked names.
func (s *InFlightSet) Len() int {
	return s.names.Len()
}

// Names returns tracked names in sorted order.
func (s *InFlightSet) Names() []string {
	out := make([]string, 0, s.names.Len())
	s.names.Ascend(func(n string) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Retain drops every name not in keep and returns the dropped names, sorted.
func (s *InFlightSet) Retain(keep map[string]struct{}) []string {
	var pruned []string
	s.names.Ascend(func(n string) bool {
		if _, ok := keep[n]; !ok {
			pruned = append(pruned, n)
		}
		return true
	})
	for _, n := range pruned {
		s.names.Delete(n)
	}
	return pruned
}
