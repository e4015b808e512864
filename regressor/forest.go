// Package regressor implements a random-forest regressor: bagged CART trees
// with per-split feature sampling. It sits behind a plain Fit/Predict
// surface so any supervised regressor could take its place.
package regressor

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/exp/rand"
)

const (
	CriterionSquaredError  = "squared_error"
	CriterionAbsoluteError = "absolute_error"
	CriterionFriedmanMSE   = "friedman_mse"
)

var ErrNotFitted = errors.New("regressor has not been fitted")

// Params are the forest hyperparameters. Zero MaxDepth means unlimited
// depth.
type Params struct {
	NEstimators           int     `cbor:"n_estimators"`
	Criterion             string  `cbor:"criterion"`
	MaxDepth              int     `cbor:"max_depth"`
	MinSamplesSplit       int     `cbor:"min_samples_split"`
	MinSamplesLeaf        int     `cbor:"min_samples_leaf"`
	MinWeightFractionLeaf float64 `cbor:"min_weight_fraction_leaf"`
	MaxFeatures           float64 `cbor:"max_features"` // fraction of features tried per split
	MinImpurityDecrease   float64 `cbor:"min_impurity_decrease"`
	RandomState           uint64  `cbor:"random_state"`
}

func (p Params) validate() error {
	if p.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	}
	switch p.Criterion {
	case CriterionSquaredError, CriterionAbsoluteError, CriterionFriedmanMSE:
	default:
		return fmt.Errorf("unknown criterion %q", p.Criterion)
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		return fmt.Errorf("max_features must be in (0, 1], got %v", p.MaxFeatures)
	}
	return nil
}

// Forest is a fitted random-forest regressor.
type Forest struct {
	Params   Params  `cbor:"params"`
	Features int     `cbor:"features"`
	Trees    []*Node `cbor:"trees"`
}

func New(params Params) *Forest {
	return &Forest{Params: params}
}

// Fit trains the forest on rows X with targets y. Each tree sees a
// bootstrap sample drawn from a generator seeded by RandomState and the
// tree index, so fitting is deterministic for fixed inputs and params.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if err := f.Params.validate(); err != nil {
		return err
	}
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("got %d rows and %d targets", len(X), len(y))
	}

	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), d)
		}
	}

	featsPerCut := int(math.Ceil(f.Params.MaxFeatures * float64(d)))
	if featsPerCut < 1 {
		featsPerCut = 1
	}

	minSplit := f.Params.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	minLeaf := f.Params.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	params := f.Params
	params.MinSamplesSplit = minSplit
	params.MinSamplesLeaf = minLeaf

	f.Features = d
	f.Trees = make([]*Node, f.Params.NEstimators)

	for i := range f.Trees {
		rng := rand.New(rand.NewSource(f.Params.RandomState + uint64(i)))

		sample := make([]int, len(X))
		for j := range sample {
			sample[j] = rng.Intn(len(X))
		}

		b := &treeBuilder{
			X:           X,
			y:           y,
			params:      params,
			rng:         rng,
			total:       len(X),
			featsPerCut: featsPerCut,
		}
		f.Trees[i] = b.build(sample, 0)
	}

	return nil
}

// Predict returns the mean prediction of the trees for one feature row.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != f.Features {
		return 0, fmt.Errorf("got %d features, fitted on %d", len(x), f.Features)
	}

	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// MarshalBinary and UnmarshalBinary round-trip the fitted forest through
// CBOR for on-disk persistence.
func (f *Forest) MarshalBinary() ([]byte, error) {
	type forest Forest // shed methods so cbor does not recurse
	return cbor.Marshal((*forest)(f))
}

func (f *Forest) UnmarshalBinary(data []byte) error {
	type forest Forest
	return cbor.Unmarshal(data, (*forest)(f))
}
