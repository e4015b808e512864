package features

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WeightTableParams parameterize the random weight table the projection is
// drawn from. The reduction is random, not learned: the same seed always
// produces the same table.
type WeightTableParams struct {
	RandomSeed uint64
	Mean       float64
	Std        float64
	Scale      float64
}

// ArchTransform is a fitted reduction for one architecture: a projection
// matrix from the architecture's flat width down to the shared feature
// width, plus the z-score parameters captured at fit time when
// normalization is enabled.
type ArchTransform struct {
	InputWidth  int       `cbor:"input_width"`
	OutputWidth int       `cbor:"output_width"`
	Projection  []float64 `cbor:"projection"` // row-major InputWidth x OutputWidth

	// nil unless normalization was enabled at fit time
	Mean []float64 `cbor:"mean,omitempty"`
	Std  []float64 `cbor:"std,omitempty"`
}

// Transform holds one fitted ArchTransform per architecture.
type Transform map[string]ArchTransform

// FitReduction builds a per-architecture random projection. Entries are
// drawn from Normal(params.Mean, params.Std) and multiplied by params.Scale,
// using a generator seeded per architecture from params.RandomSeed, so the
// result is independent of both map iteration order and the order of the
// flat vectors. Labels are never consulted. When normalize is set the
// per-column mean and standard deviation of the training vectors are
// recorded for z-scoring at apply time.
func FitReduction(flats map[string][][]float64, params WeightTableParams, outWidth int, normalize bool) (Transform, error) {
	if outWidth <= 0 {
		return nil, fmt.Errorf("reduction output width must be positive, got %d", outWidth)
	}

	tr := make(Transform, len(flats))

	archs := maps.Keys(flats)
	slices.Sort(archs)

	for _, arch := range archs {
		vectors := flats[arch]
		if len(vectors) == 0 {
			return nil, fmt.Errorf("architecture %s: no flat vectors to fit on", arch)
		}

		width := len(vectors[0])
		for i, v := range vectors {
			if len(v) != width {
				return nil, fmt.Errorf("architecture %s: vector %d has width %d, want %d", arch, i, len(v), width)
			}
		}

		dist := distuv.Normal{
			Mu:    params.Mean,
			Sigma: params.Std,
			Src:   rand.NewSource(params.RandomSeed),
		}

		projection := make([]float64, width*outWidth)
		for i := range projection {
			projection[i] = dist.Rand() * params.Scale
		}

		at := ArchTransform{
			InputWidth:  width,
			OutputWidth: outWidth,
			Projection:  projection,
		}

		if normalize {
			at.Mean = make([]float64, width)
			at.Std = make([]float64, width)

			col := make([]float64, len(vectors))
			for j := 0; j < width; j++ {
				for i, v := range vectors {
					col[i] = v[j]
				}

				mean, std := stat.MeanStdDev(col, nil)
				if std == 0 || len(vectors) < 2 {
					// constant column: leave it centered but unscaled
					std = 1
				}

				at.Mean[j] = mean
				at.Std[j] = std
			}
		}

		tr[arch] = at
	}

	return tr, nil
}

// Apply projects one flat vector down to the feature width. It is a pure
// function of the transform and the input: identical inputs always produce
// bit-identical outputs.
func (at ArchTransform) Apply(flat []float64) ([]float64, error) {
	if len(flat) != at.InputWidth {
		return nil, fmt.Errorf("flat vector width %d does not match transform input width %d", len(flat), at.InputWidth)
	}

	x := flat
	if at.Mean != nil {
		x = make([]float64, len(flat))
		for i, v := range flat {
			x[i] = (v - at.Mean[i]) / at.Std[i]
		}
	}

	var out mat.Dense
	out.Mul(
		mat.NewDense(1, at.InputWidth, x),
		mat.NewDense(at.InputWidth, at.OutputWidth, at.Projection),
	)

	return mat.Row(nil, 0, &out), nil
}
