package tree

// MeanDecreaseImpurity computes per-feature importance as the total
// weight-scaled impurity reduction contributed by all enabled splits on that
// feature, normalized to sum to 1. Works over any fitted tree structure,
// classification or regression. Disabled paths contribute nothing, since
// routing never descends through them.
func MeanDecreaseImpurity(root Node, nFeatures int) []float64 {
	imp := make([]float64, nFeatures)
	if root == nil || root.Weight() <= 0 {
		return imp
	}
	accumulateMDI(root, root.Weight(), imp)
	normalize(imp)
	return imp
}

func accumulateMDI(n Node, totalWeight float64, imp []float64) {
	if n == nil || n.IsLeaf() {
		return
	}

	allDisabled := true
	childImpurity := 0.0
	for i := 0; i < n.ChildCount(); i++ {
		if n.PathDisabled(i) {
			continue
		}
		allDisabled = false
		child := n.Child(i)
		childImpurity += child.Weight() * child.Impurity()
		accumulateMDI(child, totalWeight, imp)
	}
	if allDisabled {
		return
	}

	decrease := (n.Weight()*n.Impurity() - childImpurity) / totalWeight
	if decrease > 0 && n.Feature() >= 0 && n.Feature() < len(imp) {
		imp[n.Feature()] += decrease
	}
}

// ImportanceByUses counts how often each feature is used by an enabled split
// node, normalized to sum to 1. It is a cheap structural importance that
// ignores how much each split actually improved the tree.
func ImportanceByUses(root Node, nFeatures int) []float64 {
	imp := make([]float64, nFeatures)
	if root == nil {
		return imp
	}
	countUses(root, imp)
	normalize(imp)
	return imp
}

func countUses(n Node, imp []float64) {
	if n == nil || n.IsLeaf() {
		return
	}

	used := false
	for i := 0; i < n.ChildCount(); i++ {
		if n.PathDisabled(i) {
			continue
		}
		used = true
		countUses(n.Child(i), imp)
	}
	if used && n.Feature() >= 0 && n.Feature() < len(imp) {
		imp[n.Feature()]++
	}
}

func normalize(xs []float64) {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	if sum <= 0 {
		return
	}
	for i := range xs {
		xs[i] /= sum
	}
}
