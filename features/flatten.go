package features

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"trojascan/weights"
)

// LayerNotFoundError reports a layer recorded in the layer map that is
// absent from the model being flattened. Consistency checking makes this
// unreachable during training; at inference the map was built on a
// different corpus, so it must be handled.
type LayerNotFoundError struct {
	Arch  string
	Layer string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("architecture %s: layer %q recorded in layer map not found in model", e.Arch, e.Layer)
}

// Flatten serializes a model into a single vector by walking the layer map
// order, never the model's own iteration order, so every model of an
// architecture flattens to the same layout. The result length is exactly
// lm.TotalLength().
func Flatten(m *weights.Model, lm ArchLayerMap) ([]float64, error) {
	out := make([]float64, 0, lm.TotalLength())

	for _, entry := range lm {
		t, ok := m.Get(entry.Name)
		if !ok {
			return nil, &LayerNotFoundError{Arch: m.Arch, Layer: entry.Name}
		}

		if n := t.Elements(); n != entry.Length {
			return nil, fmt.Errorf("architecture %s: layer %q has %d elements, layer map records %d",
				m.Arch, entry.Name, n, entry.Length)
		}

		f32s, err := flattenTensor(t)
		if err != nil {
			return nil, fmt.Errorf("architecture %s: layer %q: %w", m.Arch, entry.Name, err)
		}

		for _, v := range f32s {
			out = append(out, float64(v))
		}
	}

	return out, nil
}

// flattenTensor reshapes a tensor to a rank-1 view of its row-major data.
func flattenTensor(t weights.Tensor) ([]float32, error) {
	dims := t.Shape
	if len(dims) == 0 {
		dims = []int{len(t.Data)}
	}

	tt := tensor.New(tensor.WithShape(dims...), tensor.WithBacking(slices.Clone(t.Data)))
	if err := tt.Reshape(tt.Shape().TotalSize()); err != nil {
		return nil, err
	}

	return native.VectorF32(tt)
}
