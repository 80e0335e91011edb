package tree

import (
	"sort"

	"github.com/groveml/grove/dataset"
)

// Node is a single node of a fitted decision tree. Split nodes route points
// to one of their children; leaves carry a prediction. Children are fixed at
// construction, but individual paths can be disabled by pruning, in which
// case routing falls back to the split node's own prediction.
type Node interface {
	// IsLeaf reports whether the node has no children.
	IsLeaf() bool
	// ChildCount returns the number of outgoing paths, 0 for leaves.
	ChildCount() int
	// Child returns the child on path i, or nil when the path is disabled.
	Child(i int) Node
	// DisablePath marks path i as pruned. The child is retained.
	DisablePath(i int)
	// PathDisabled reports whether path i has been pruned.
	PathDisabled(i int) bool
	// Feature returns the combined feature index the node splits on,
	// or -1 for leaves.
	Feature() int
	// Route returns the path index the point follows, -1 for leaves.
	Route(p *dataset.Point) int
	// Weight returns the total training weight that reached the node.
	Weight() float64
	// Impurity returns the training impurity (or variance) at the node.
	Impurity() float64
}

// Leaf is a terminal node carrying either a class distribution or a
// regression value.
type Leaf struct {
	probs    []float64
	value    float64
	weight   float64
	impurity float64
}

// NewLeaf returns a classification leaf with the given class distribution.
func NewLeaf(probs []float64, weight, impurity float64) *Leaf {
	return &Leaf{probs: probs, weight: weight, impurity: impurity}
}

// NewRegressionLeaf returns a regression leaf predicting value.
func NewRegressionLeaf(value, weight, impurity float64) *Leaf {
	return &Leaf{value: value, weight: weight, impurity: impurity}
}

func (l *Leaf) IsLeaf() bool                  { return true }
func (l *Leaf) ChildCount() int               { return 0 }
func (l *Leaf) Child(int) Node                { return nil }
func (l *Leaf) DisablePath(int)               {}
func (l *Leaf) PathDisabled(int) bool         { return false }
func (l *Leaf) Feature() int                  { return -1 }
func (l *Leaf) Route(*dataset.Point) int      { return -1 }
func (l *Leaf) Weight() float64               { return l.weight }
func (l *Leaf) Impurity() float64             { return l.impurity }

// Probabilities returns the class distribution, nil for regression leaves.
func (l *Leaf) Probabilities() []float64 { return l.probs }

// Value returns the regression prediction.
func (l *Leaf) Value() float64 { return l.value }

// splitNode holds the state shared by numeric and categorical splits.
// The node's own distribution and value double as the fallback prediction
// when a routed path has been disabled.
type splitNode struct {
	feature  int
	children []Node
	disabled []bool
	weight   float64
	impurity float64
	probs    []float64
	value    float64
}

func (n *splitNode) IsLeaf() bool    { return false }
func (n *splitNode) ChildCount() int { return len(n.children) }

func (n *splitNode) Child(i int) Node {
	if i < 0 || i >= len(n.children) || n.disabled[i] {
		return nil
	}
	return n.children[i]
}

func (n *splitNode) DisablePath(i int) {
	if i >= 0 && i < len(n.disabled) {
		n.disabled[i] = true
	}
}

func (n *splitNode) PathDisabled(i int) bool {
	return i >= 0 && i < len(n.disabled) && n.disabled[i]
}

func (n *splitNode) Feature() int      { return n.feature }
func (n *splitNode) Weight() float64   { return n.weight }
func (n *splitNode) Impurity() float64 { return n.impurity }

// Probabilities returns the node's own class distribution, used as the
// fallback prediction for pruned paths.
func (n *splitNode) Probabilities() []float64 { return n.probs }

// Value returns the node's own regression prediction.
func (n *splitNode) Value() float64 { return n.value }

func (n *splitNode) setChild(i int, c Node) { n.children[i] = c }
func (n *splitNode) setProbs(p []float64)   { n.probs = p }
func (n *splitNode) setValue(v float64)     { n.value = v }

// splitter is the package-internal construction surface of split nodes.
type splitter interface {
	Node
	setChild(i int, c Node)
	setProbs(p []float64)
	setValue(v float64)
}

// NumericSplit routes points by comparing one numeric attribute against an
// ascending list of thresholds. A binary split has a single threshold; more
// thresholds produce a multiway split over consecutive intervals.
type NumericSplit struct {
	splitNode
	thresholds []float64
}

// NewNumericSplit returns a split on numeric feature index feature with the
// given ascending thresholds and len(thresholds)+1 paths.
func NewNumericSplit(feature int, thresholds []float64, weight, impurity float64) *NumericSplit {
	paths := len(thresholds) + 1
	return &NumericSplit{
		splitNode: splitNode{
			feature:  feature,
			children: make([]Node, paths),
			disabled: make([]bool, paths),
			weight:   weight,
			impurity: impurity,
		},
		thresholds: thresholds,
	}
}

// Route returns the index of the first interval containing the point's
// value: path i covers (thresholds[i-1], thresholds[i]].
func (n *NumericSplit) Route(p *dataset.Point) int {
	v := p.NumericValue(n.feature)
	return sort.SearchFloat64s(n.thresholds, v)
}

// Thresholds returns the split boundaries.
func (n *NumericSplit) Thresholds() []float64 { return n.thresholds }

// CategoricalSplit routes points by the value of one categorical attribute
// through a per-value path table. A full fan-out split maps each value to
// its own path; a grouped split maps several values to a shared path.
type CategoricalSplit struct {
	splitNode
	catIdx      int
	valueToPath []int
}

// NewCategoricalSplit returns a split on the categorical attribute at
// combined feature index feature. catIdx is the index into the point's
// categorical values, and valueToPath maps each category value to a path.
func NewCategoricalSplit(feature, catIdx int, valueToPath []int, paths int, weight, impurity float64) *CategoricalSplit {
	return &CategoricalSplit{
		splitNode: splitNode{
			feature:  feature,
			children: make([]Node, paths),
			disabled: make([]bool, paths),
			weight:   weight,
			impurity: impurity,
		},
		catIdx:      catIdx,
		valueToPath: valueToPath,
	}
}

func (n *CategoricalSplit) Route(p *dataset.Point) int {
	v := p.Categorical(n.catIdx)
	if v < 0 || v >= len(n.valueToPath) {
		return -1
	}
	return n.valueToPath[v]
}

// fallbackNode is implemented by split nodes so that tree traversal can
// recover a prediction when routing hits a disabled path.
type fallbackNode interface {
	Probabilities() []float64
	Value() float64
}

// classifyPoint walks the tree from root and returns the class distribution
// at the reached leaf, or the fallback distribution of the last split node
// when a path is disabled or unroutable.
func classifyPoint(root Node, p *dataset.Point) []float64 {
	n := root
	for !n.IsLeaf() {
		path := n.Route(p)
		if path < 0 {
			return n.(fallbackNode).Probabilities()
		}
		child := n.Child(path)
		if child == nil {
			return n.(fallbackNode).Probabilities()
		}
		n = child
	}
	return n.(*Leaf).Probabilities()
}

// regressPoint is the regression analogue of classifyPoint.
func regressPoint(root Node, p *dataset.Point) float64 {
	n := root
	for !n.IsLeaf() {
		path := n.Route(p)
		if path < 0 {
			return n.(fallbackNode).Value()
		}
		child := n.Child(path)
		if child == nil {
			return n.(fallbackNode).Value()
		}
		n = child
	}
	return n.(*Leaf).Value()
}

// countLeaves returns the number of reachable prediction points: enabled
// leaves plus one per disabled path, since a disabled path predicts from
// its split node.
func countLeaves(n Node) int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	total := 0
	for i := 0; i < n.ChildCount(); i++ {
		if n.PathDisabled(i) {
			total++
			continue
		}
		total += countLeaves(n.Child(i))
	}
	return total
}

// treeDepth returns the maximum depth over enabled paths. A lone leaf has
// depth 0.
func treeDepth(n Node) int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	max := 0
	for i := 0; i < n.ChildCount(); i++ {
		if n.PathDisabled(i) {
			continue
		}
		if d := treeDepth(n.Child(i)); d > max {
			max = d
		}
	}
	return max + 1
}
