package weights

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/exp/maps"
)

type safetensorMetadata struct {
	Type    string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

// readSafetensors loads a single-file safetensors checkpoint: an 8-byte
// little-endian header length, a JSON header describing each tensor, then
// the raw tensor payloads. Layers are inserted in sorted name order since
// JSON decoding does not preserve the header's key order.
func readSafetensors(p string) (*Model, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var n int64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err = io.CopyN(b, f, n); err != nil {
		return nil, err
	}

	var headers map[string]safetensorMetadata
	if err := json.NewDecoder(b).Decode(&headers); err != nil {
		return nil, err
	}

	keys := maps.Keys(headers)
	slices.Sort(keys)

	m := NewModel("")
	for _, key := range keys {
		value := headers[key]
		if value.Type == "" {
			// metadata pseudo-entry ("__metadata__")
			continue
		}

		data, err := readSafetensorData(f, 8+n+value.Offsets[0], value.Offsets[1]-value.Offsets[0], value.Type)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", key, err)
		}

		m.Put(key, Tensor{Shape: slices.Clone(value.Shape), Data: data})
	}

	return m, nil
}

func readSafetensorData(f io.ReadSeeker, offset, size int64, dtype string) ([]float32, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	switch dtype {
	case "F32":
		f32s := make([]float32, size/4)
		if err := binary.Read(f, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}
		return f32s, nil
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(f, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}

		f32s := make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
		return f32s, nil
	case "BF16":
		u8s := make([]uint8, size)
		if err := binary.Read(f, binary.LittleEndian, u8s); err != nil {
			return nil, err
		}
		return bfloat16.DecodeFloat32(u8s), nil
	default:
		return nil, fmt.Errorf("unknown data type: %s", dtype)
	}
}
