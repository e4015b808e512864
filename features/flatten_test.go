package features

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trojascan/weights"
)

func tinyModel(order ...string) *weights.Model {
	tensors := map[string]weights.Tensor{
		"conv.weight": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"fc.weight":   {Shape: []int{2, 2}, Data: []float32{7, 8, 9, 10}},
		"fc.bias":     {Shape: []int{2}, Data: []float32{11, 12}},
	}

	m := weights.NewModel("TinyNet")
	for _, name := range order {
		m.Put(name, tensors[name])
	}
	return m
}

func TestBuildLayerMap(t *testing.T) {
	m := tinyModel("conv.weight", "fc.weight", "fc.bias")

	lm, err := BuildLayerMap(map[string][]*weights.Model{"TinyNet": {m}})
	require.NoError(t, err)

	want := ArchLayerMap{
		{Name: "conv.weight", Length: 6},
		{Name: "fc.weight", Length: 4},
		{Name: "fc.bias", Length: 2},
	}
	assert.Equal(t, want, lm["TinyNet"])
	assert.Equal(t, 12, lm["TinyNet"].TotalLength())
}

func TestBuildLayerMapDeterministic(t *testing.T) {
	reprs := map[string][]*weights.Model{"TinyNet": {tinyModel("conv.weight", "fc.weight", "fc.bias")}}

	a, err := BuildLayerMap(reprs)
	require.NoError(t, err)
	b, err := BuildLayerMap(reprs)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildLayerMapEmptyArch(t *testing.T) {
	_, err := BuildLayerMap(map[string][]*weights.Model{"TinyNet": {}})
	require.Error(t, err)
}

func TestFlattenFollowsMapOrder(t *testing.T) {
	lm := ArchLayerMap{
		{Name: "conv.weight", Length: 6},
		{Name: "fc.weight", Length: 4},
		{Name: "fc.bias", Length: 2},
	}

	want := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	// same layers stored in different orders flatten identically
	for _, order := range [][]string{
		{"conv.weight", "fc.weight", "fc.bias"},
		{"fc.bias", "conv.weight", "fc.weight"},
		{"fc.weight", "fc.bias", "conv.weight"},
	} {
		flat, err := Flatten(tinyModel(order...), lm)
		require.NoError(t, err)
		assert.Equal(t, want, flat)
		assert.Len(t, flat, lm.TotalLength())
	}
}

func TestFlattenMissingLayer(t *testing.T) {
	lm := ArchLayerMap{{Name: "absent.weight", Length: 2}}

	_, err := Flatten(tinyModel("fc.bias"), lm)

	var notFound *LayerNotFoundError
	require.True(t, errors.As(err, &notFound), "err = %v", err)
	assert.Equal(t, "absent.weight", notFound.Layer)
	assert.Equal(t, "TinyNet", notFound.Arch)
}

func TestFlattenLengthMismatch(t *testing.T) {
	lm := ArchLayerMap{{Name: "fc.bias", Length: 5}}

	_, err := Flatten(tinyModel("fc.bias"), lm)
	require.Error(t, err)
}

func TestLayerMapCBORRoundTrip(t *testing.T) {
	m := tinyModel("conv.weight", "fc.weight", "fc.bias")
	lm, err := BuildLayerMap(map[string][]*weights.Model{"TinyNet": {m}})
	require.NoError(t, err)

	data, err := cbor.Marshal(lm)
	require.NoError(t, err)

	var back LayerMap
	require.NoError(t, cbor.Unmarshal(data, &back))
	require.Equal(t, lm, back)

	before, err := Flatten(m, lm["TinyNet"])
	require.NoError(t, err)
	after, err := Flatten(m, back["TinyNet"])
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
