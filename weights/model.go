package weights

import (
	"errors"
	"fmt"
	"slices"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"golang.org/x/exp/maps"
)

// ErrUnknownArchitecture is returned when a model's layer set matches no
// entry in the architecture table.
var ErrUnknownArchitecture = errors.New("unknown model architecture")

// Model is one model's weights: an ordered association from layer name to
// tensor. Iteration order is insertion order, which for a deserialized
// checkpoint is the order the layers appear on disk, stable across runs.
type Model struct {
	Arch string

	layers *linkedhashmap.Map
}

func NewModel(arch string) *Model {
	return &Model{
		Arch:   arch,
		layers: linkedhashmap.New(),
	}
}

func (m *Model) Put(name string, t Tensor) {
	m.layers.Put(name, t)
}

func (m *Model) Get(name string) (Tensor, bool) {
	v, ok := m.layers.Get(name)
	if !ok {
		return Tensor{}, false
	}
	return v.(Tensor), true
}

// LayerNames returns the layer names in insertion order.
func (m *Model) LayerNames() []string {
	keys := m.layers.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.(string)
	}
	return names
}

func (m *Model) Len() int {
	return m.layers.Size()
}

// ArchSpec describes one supported architecture: the head layers whose shape
// depends on the model's class count, and the canonical shape each one is
// padded to so every model of the architecture carries the same number of
// weights.
type ArchSpec struct {
	Name    string
	Padding map[string][]int
	Skew    float64
}

// ArchTable is the closed set of architectures the detector understands,
// keyed by architecture name. It is passed into the pipeline explicitly so
// tests can run against synthetic architectures.
type ArchTable map[string]ArchSpec

// DefaultArchTable covers the three supported classifier families. The head
// width 138 is the largest class count seen across the training rounds.
func DefaultArchTable() ArchTable {
	return ArchTable{
		"MobileNetV2": {
			Name: "MobileNetV2",
			Padding: map[string][]int{
				"classifier.1.weight": {138, 1280},
				"classifier.1.bias":   {138},
			},
		},
		"ResNet": {
			Name: "ResNet",
			Padding: map[string][]int{
				"fc.weight": {138, 2048},
				"fc.bias":   {138},
			},
		},
		"VisionTransformer": {
			Name: "VisionTransformer",
			Padding: map[string][]int{
				"head.weight": {138, 768},
				"head.bias":   {138},
			},
		},
	}
}

// Detect matches a model's layer set against the table by head-layer
// fingerprint: the first architecture (in name order) whose padded layers are
// all present wins.
func (t ArchTable) Detect(m *Model) (string, error) {
	names := make(map[string]struct{}, m.Len())
	for _, name := range m.LayerNames() {
		names[name] = struct{}{}
	}

	archs := maps.Keys(t)
	slices.Sort(archs)

	for _, arch := range archs {
		found := true
		for layer := range t[arch].Padding {
			if _, ok := names[layer]; !ok {
				found = false
				break
			}
		}
		if found {
			return arch, nil
		}
	}

	return "", fmt.Errorf("%w: no architecture head matches layers %v", ErrUnknownArchitecture, m.LayerNames())
}

// PadModel pads the architecture's head layers in place to their canonical
// shapes. Layers not named in the spec pass through untouched. The padded
// tensors are fresh copies; the original backing slices are not written to.
func (t ArchTable) PadModel(m *Model) error {
	spec, ok := t[m.Arch]
	if !ok {
		return fmt.Errorf("%w: %q has no padding table entry", ErrUnknownArchitecture, m.Arch)
	}

	layers := maps.Keys(spec.Padding)
	slices.Sort(layers)

	for _, layer := range layers {
		tens, ok := m.Get(layer)
		if !ok {
			return fmt.Errorf("architecture %s: padded layer %q missing from model", m.Arch, layer)
		}

		padded, err := PadToTarget(tens, spec.Padding[layer])
		if err != nil {
			return fmt.Errorf("architecture %s: layer %q: %w", m.Arch, layer, err)
		}

		m.Put(layer, padded)
	}

	return nil
}
