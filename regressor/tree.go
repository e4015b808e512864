package regressor

import (
	"math"
	"slices"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// Node is one regression-tree node. Leaves carry the prediction; interior
// nodes route on Feature <= Threshold.
type Node struct {
	Feature   int     `cbor:"feature"`
	Threshold float64 `cbor:"threshold"`
	Value     float64 `cbor:"value"`
	Left      *Node   `cbor:"left,omitempty"`
	Right     *Node   `cbor:"right,omitempty"`
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

func (n *Node) predict(x []float64) float64 {
	for !n.leaf() {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

type treeBuilder struct {
	X [][]float64
	y []float64

	params      Params
	rng         *rand.Rand
	total       int // corpus size, for the leaf weight-fraction constraint
	featsPerCut int
}

func (b *treeBuilder) build(indices []int, depth int) *Node {
	node := &Node{Feature: -1, Value: b.leafValue(indices)}

	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return node
	}
	if len(indices) < b.params.MinSamplesSplit {
		return node
	}
	if b.impurity(indices) == 0 {
		return node
	}

	feature, threshold, decrease, ok := b.bestSplit(indices)
	if !ok || decrease < b.params.MinImpurityDecrease {
		return node
	}

	var left, right []int
	for _, i := range indices {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = b.build(left, depth+1)
	node.Right = b.build(right, depth+1)
	return node
}

// bestSplit scans a random feature subset for the split with the highest
// weighted impurity decrease that keeps both children above the leaf-size
// constraints.
func (b *treeBuilder) bestSplit(indices []int) (feature int, threshold, decrease float64, ok bool) {
	minLeaf := b.params.MinSamplesLeaf
	if frac := int(math.Ceil(b.params.MinWeightFractionLeaf * float64(b.total))); frac > minLeaf {
		minLeaf = frac
	}

	parent := b.impurity(indices)
	n := float64(len(indices))

	best := math.Inf(-1)

	for _, f := range b.sampleFeatures() {
		sorted := slices.Clone(indices)
		slices.SortFunc(sorted, func(a, c int) int {
			switch {
			case b.X[a][f] < b.X[c][f]:
				return -1
			case b.X[a][f] > b.X[c][f]:
				return 1
			default:
				return 0
			}
		})

		for cut := minLeaf; cut <= len(sorted)-minLeaf; cut++ {
			lo, hi := b.X[sorted[cut-1]][f], b.X[sorted[cut]][f]
			if lo == hi {
				continue
			}

			left, right := sorted[:cut], sorted[cut:]
			d := parent - (float64(len(left))*b.impurity(left)+float64(len(right))*b.impurity(right))/n
			if d > best {
				best = d
				feature = f
				threshold = lo + (hi-lo)/2
			}
		}
	}

	if math.IsInf(best, -1) {
		return 0, 0, 0, false
	}
	return feature, threshold, best, true
}

func (b *treeBuilder) sampleFeatures() []int {
	d := len(b.X[0])
	feats := b.rng.Perm(d)
	return feats[:b.featsPerCut]
}

func (b *treeBuilder) impurity(indices []int) float64 {
	vals := make([]float64, len(indices))
	for i, idx := range indices {
		vals[i] = b.y[idx]
	}

	switch b.params.Criterion {
	case CriterionAbsoluteError:
		slices.Sort(vals)
		med := stat.Quantile(0.5, stat.Empirical, vals, nil)
		var mad float64
		for _, v := range vals {
			mad += math.Abs(v - med)
		}
		return mad / float64(len(vals))
	default: // squared error and friedman both use variance here
		mean := stat.Mean(vals, nil)
		var ss float64
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		return ss / float64(len(vals))
	}
}

func (b *treeBuilder) leafValue(indices []int) float64 {
	var sum float64
	for _, i := range indices {
		sum += b.y[i]
	}
	return sum / float64(len(indices))
}
