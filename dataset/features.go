package dataset

import "sort"

// FeatureSet is a snapshot of candidate feature indices for split search.
// Indices [0, numNumeric) are numeric attributes, the rest categorical.
//
// Tree code clones the set before passing it to a child node, so concurrently
// expanded sibling subtrees never alias each other's candidate sets. The
// iteration order of Values is sorted and therefore deterministic.
type FeatureSet struct {
	members []int // sorted, unique
}

// NewFeatureSet creates a set holding the given feature indices.
func NewFeatureSet(indices ...int) *FeatureSet {
	fs := &FeatureSet{members: make([]int, 0, len(indices))}
	for _, idx := range indices {
		fs.Add(idx)
	}
	return fs
}

// AllFeatures returns the set {0, ..., numNumeric+numCategorical-1}.
func AllFeatures(numNumeric, numCategorical int) *FeatureSet {
	members := make([]int, numNumeric+numCategorical)
	for i := range members {
		members[i] = i
	}
	return &FeatureSet{members: members}
}

// Len returns the number of candidate features.
func (f *FeatureSet) Len() int {
	return len(f.members)
}

// Contains reports whether idx is a candidate.
func (f *FeatureSet) Contains(idx int) bool {
	i := sort.SearchInts(f.members, idx)
	return i < len(f.members) && f.members[i] == idx
}

// Add inserts idx, keeping the set sorted. Duplicates are ignored.
func (f *FeatureSet) Add(idx int) {
	i := sort.SearchInts(f.members, idx)
	if i < len(f.members) && f.members[i] == idx {
		return
	}
	f.members = append(f.members, 0)
	copy(f.members[i+1:], f.members[i:])
	f.members[i] = idx
}

// Remove deletes idx if present.
func (f *FeatureSet) Remove(idx int) {
	i := sort.SearchInts(f.members, idx)
	if i < len(f.members) && f.members[i] == idx {
		f.members = append(f.members[:i], f.members[i+1:]...)
	}
}

// Clone returns an independent copy. Branching tree code must clone before
// handing the set to a child.
func (f *FeatureSet) Clone() *FeatureSet {
	members := make([]int, len(f.members))
	copy(members, f.members)
	return &FeatureSet{members: members}
}

// Values returns the candidate indices in ascending order. The returned slice
// is a copy.
func (f *FeatureSet) Values() []int {
	values := make([]int, len(f.members))
	copy(values, f.members)
	return values
}
