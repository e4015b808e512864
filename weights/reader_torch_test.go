package weights

import (
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDictModelOrderedDict(t *testing.T) {
	d := types.NewOrderedDict()
	d.Set("fc.weight", &pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{2, 3},
	})
	d.Set("fc.bias", &pytorch.Tensor{
		Source: &pytorch.HalfStorage{Data: []float32{0.5, -1.5}},
		Size:   []int{2},
	})

	m, err := stateDictModel(d)
	require.NoError(t, err)

	// insertion order survives
	assert.Equal(t, []string{"fc.weight", "fc.bias"}, m.LayerNames())

	w, ok := m.Get("fc.weight")
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, w.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.Data)

	b, ok := m.Get("fc.bias")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, -1.5}, b.Data)
}

func TestStateDictModelDict(t *testing.T) {
	d := types.NewDict()
	d.Set("fc.bias", &pytorch.Tensor{
		Source: &pytorch.DoubleStorage{Data: []float64{1.25, -2.5}},
		Size:   []int{2},
	})

	m, err := stateDictModel(d)
	require.NoError(t, err)

	b, ok := m.Get("fc.bias")
	require.True(t, ok)
	assert.Equal(t, []float32{1.25, -2.5}, b.Data)
}

func TestStateDictModelBadRoot(t *testing.T) {
	_, err := stateDictModel("not a state dict")
	require.Error(t, err)
}

func TestStateDictModelBadValue(t *testing.T) {
	d := types.NewOrderedDict()
	d.Set("fc.bias", "not a tensor")

	_, err := stateDictModel(d)
	require.Error(t, err)
}

func TestStorageFloats(t *testing.T) {
	cases := []struct {
		name    string
		src     pytorch.StorageInterface
		offset  int
		n       int
		want    []float32
		wantErr bool
	}{
		{
			name: "float",
			src:  &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4}},
			n:    4,
			want: []float32{1, 2, 3, 4},
		},
		{
			name:   "float offset",
			src:    &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4}},
			offset: 2,
			n:      2,
			want:   []float32{3, 4},
		},
		{
			name: "half",
			src:  &pytorch.HalfStorage{Data: []float32{0.5, -0.5}},
			n:    2,
			want: []float32{0.5, -0.5},
		},
		{
			name: "double narrows",
			src:  &pytorch.DoubleStorage{Data: []float64{1.5, -2.25}},
			n:    2,
			want: []float32{1.5, -2.25},
		},
		{
			name:    "offset past end",
			src:     &pytorch.FloatStorage{Data: []float32{1, 2}},
			offset:  1,
			n:       2,
			wantErr: true,
		},
		{
			name:    "unsupported storage",
			src:     &pytorch.ByteStorage{},
			n:       1,
			wantErr: true,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storageFloats(tt.src, tt.offset, tt.n)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
