package tree

import (
	"math"

	"github.com/groveml/grove/dataset"
)

// PruneMethod selects how a fitted tree is simplified after training.
// Pruning never deletes nodes: it disables paths, and routing through a
// disabled path falls back to the split node's own prediction.
type PruneMethod int

const (
	// PruneNone leaves the tree as grown.
	PruneNone PruneMethod = iota
	// PruneReducedError collapses subtrees whose held-out error is no
	// better than predicting from the subtree root directly.
	PruneReducedError
	// PruneErrorBased collapses subtrees by comparing pessimistic error
	// estimates computed from the training statistics, so it needs no
	// held-out data. Classification only.
	PruneErrorBased
)

func (m PruneMethod) String() string {
	switch m {
	case PruneNone:
		return "none"
	case PruneReducedError:
		return "reduced_error"
	case PruneErrorBased:
		return "error_based"
	default:
		return "unknown"
	}
}

// nodeProbs returns the class distribution a node predicts when treated as a
// leaf.
func nodeProbs(n Node) []float64 {
	if leaf, ok := n.(*Leaf); ok {
		return leaf.Probabilities()
	}
	return n.(fallbackNode).Probabilities()
}

// nodeValue returns the regression value a node predicts when treated as a
// leaf.
func nodeValue(n Node) float64 {
	if leaf, ok := n.(*Leaf); ok {
		return leaf.Value()
	}
	return n.(fallbackNode).Value()
}

func argmax(probs []float64) int {
	best, bestP := 0, math.Inf(-1)
	for i, p := range probs {
		if p > bestP {
			best, bestP = i, p
		}
	}
	return best
}

func pruneClassTree(root Node, method PruneMethod, held []dataset.ClassSample) int {
	switch method {
	case PruneReducedError:
		return reducedErrorPruneClass(root, held)
	case PruneErrorBased:
		return errorBasedPrune(root)
	default:
		return 0
	}
}

// reducedErrorPruneClass prunes bottom-up: children are pruned on their
// routed share of the held-out samples first, then the node is collapsed if
// predicting its own distribution misclassifies no more held-out weight than
// the subtree does. Nodes that receive no held-out samples are kept.
func reducedErrorPruneClass(n Node, samples []dataset.ClassSample) int {
	if n == nil || n.IsLeaf() || len(samples) == 0 {
		return 0
	}

	routed := make([][]dataset.ClassSample, n.ChildCount())
	for _, smp := range samples {
		path := n.Route(smp.Point)
		if path < 0 || n.PathDisabled(path) {
			continue
		}
		routed[path] = append(routed[path], smp)
	}

	disabled := 0
	for i := 0; i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			disabled += reducedErrorPruneClass(child, routed[i])
		}
	}

	errSubtree := 0.0
	for _, smp := range samples {
		if argmax(classifyPoint(n, smp.Point)) != smp.Class {
			errSubtree += smp.Point.Weight()
		}
	}
	asLeaf := argmax(nodeProbs(n))
	errLeaf := 0.0
	for _, smp := range samples {
		if asLeaf != smp.Class {
			errLeaf += smp.Point.Weight()
		}
	}

	if errLeaf <= errSubtree {
		for i := 0; i < n.ChildCount(); i++ {
			if !n.PathDisabled(i) {
				n.DisablePath(i)
				disabled++
			}
		}
	}
	return disabled
}

// pessimisticZ is the normal deviate for the C4.5 default confidence factor
// of 0.25.
const pessimisticZ = 0.6925

// pessimisticErrors returns the upper confidence bound on the error count of
// a leaf that misclassified errs out of total training weight.
func pessimisticErrors(errs, total float64) float64 {
	if total <= 0 {
		return 0
	}
	f := errs / total
	z := pessimisticZ
	z2 := z * z
	upper := (f + z2/(2*total) + z*math.Sqrt(f/total-f*f/total+z2/(4*total*total))) / (1 + z2/total)
	return total * upper
}

// nodeTrainErrors returns the training weight a node misclassifies when
// treated as a leaf.
func nodeTrainErrors(n Node) float64 {
	probs := nodeProbs(n)
	return n.Weight() * (1 - probs[argmax(probs)])
}

// errorBasedPrune collapses subtrees whose pessimistic error estimate is no
// better than the node's own.
func errorBasedPrune(n Node) int {
	disabled, _ := errorBasedPruneNode(n)
	return disabled
}

func errorBasedPruneNode(n Node) (disabled int, estimate float64) {
	if n == nil {
		return 0, 0
	}
	if n.IsLeaf() {
		return 0, pessimisticErrors(nodeTrainErrors(n), n.Weight())
	}

	subtree := 0.0
	for i := 0; i < n.ChildCount(); i++ {
		if n.PathDisabled(i) {
			continue
		}
		d, e := errorBasedPruneNode(n.Child(i))
		disabled += d
		subtree += e
	}

	asLeaf := pessimisticErrors(nodeTrainErrors(n), n.Weight())
	if asLeaf <= subtree {
		for i := 0; i < n.ChildCount(); i++ {
			if !n.PathDisabled(i) {
				n.DisablePath(i)
				disabled++
			}
		}
		return disabled, asLeaf
	}
	return disabled, subtree
}

// pruneRegTree applies reduced-error pruning with squared error as the
// evaluation loss.
func pruneRegTree(n Node, held []dataset.RegSample) int {
	if n == nil || n.IsLeaf() || len(held) == 0 {
		return 0
	}

	routed := make([][]dataset.RegSample, n.ChildCount())
	for _, smp := range held {
		path := n.Route(smp.Point)
		if path < 0 || n.PathDisabled(path) {
			continue
		}
		routed[path] = append(routed[path], smp)
	}

	disabled := 0
	for i := 0; i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			disabled += pruneRegTree(child, routed[i])
		}
	}

	errSubtree, errLeaf := 0.0, 0.0
	value := nodeValue(n)
	for _, smp := range held {
		d := regressPoint(n, smp.Point) - smp.Target
		errSubtree += smp.Point.Weight() * d * d
		d = value - smp.Target
		errLeaf += smp.Point.Weight() * d * d
	}

	if errLeaf <= errSubtree {
		for i := 0; i < n.ChildCount(); i++ {
			if !n.PathDisabled(i) {
				n.DisablePath(i)
				disabled++
			}
		}
	}
	return disabled
}
