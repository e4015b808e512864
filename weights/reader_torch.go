package weights

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// readTorch loads a PyTorch checkpoint holding a state dict: an ordered
// mapping from layer name to tensor.
func readTorch(p string) (*Model, error) {
	pt, err := pytorch.Load(p)
	if err != nil {
		return nil, err
	}

	return stateDictModel(pt)
}

func stateDictModel(root any) (*Model, error) {
	m := NewModel("")

	switch d := root.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry, ok := e.Value.(*types.OrderedDictEntry)
			if !ok {
				return nil, fmt.Errorf("unexpected state dict entry type %T", e.Value)
			}
			if err := putTorchTensor(m, entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := putTorchTensor(m, k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unexpected checkpoint root type %T, want a state dict", root)
	}

	return m, nil
}

func putTorchTensor(m *Model, key, value any) error {
	name, ok := key.(string)
	if !ok {
		return fmt.Errorf("unexpected layer name type %T", key)
	}

	t, ok := value.(*pytorch.Tensor)
	if !ok {
		return fmt.Errorf("layer %q: unexpected value type %T", name, value)
	}

	var shape []int
	n := 1
	for _, dim := range t.Size {
		shape = append(shape, dim)
		n *= dim
	}

	data, err := storageFloats(t.Source, int(t.StorageOffset), n)
	if err != nil {
		return fmt.Errorf("layer %q: %w", name, err)
	}

	m.Put(name, Tensor{Shape: shape, Data: data})
	return nil
}

// storageFloats reads n contiguous elements starting at offset out of a
// checkpoint storage, widening or narrowing everything to float32.
func storageFloats(src pytorch.StorageInterface, offset, n int) ([]float32, error) {
	out := make([]float32, n)

	switch s := src.(type) {
	case *pytorch.FloatStorage:
		if offset+n > len(s.Data) {
			return nil, fmt.Errorf("storage too small: need %d floats at offset %d, have %d", n, offset, len(s.Data))
		}
		copy(out, s.Data[offset:offset+n])
	case *pytorch.HalfStorage:
		if offset+n > len(s.Data) {
			return nil, fmt.Errorf("storage too small: need %d halfs at offset %d, have %d", n, offset, len(s.Data))
		}
		copy(out, s.Data[offset:offset+n])
	case *pytorch.DoubleStorage:
		if offset+n > len(s.Data) {
			return nil, fmt.Errorf("storage too small: need %d doubles at offset %d, have %d", n, offset, len(s.Data))
		}
		for i, v := range s.Data[offset : offset+n] {
			out[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported tensor storage type %T", src)
	}

	return out, nil
}
