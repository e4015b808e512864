// Package features turns heterogeneous per-architecture weight dictionaries
// into aligned fixed-width feature vectors: canonical layer maps, layer-set
// consistency checking, deterministic flattening and a seeded
// random-projection reduction.
package features

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"trojascan/weights"
)

// LayerEntry records one layer's position in the canonical flattening order
// and the element count it contributes.
type LayerEntry struct {
	Name   string `cbor:"name"`
	Length int    `cbor:"length"`
}

// ArchLayerMap is the canonical serialization layout for one architecture:
// layer names in a fixed order with their flattened lengths. Built once
// during training and reused verbatim at inference.
type ArchLayerMap []LayerEntry

// TotalLength is the width of every flat vector produced with this map.
func (lm ArchLayerMap) TotalLength() int {
	var n int
	for _, e := range lm {
		n += e.Length
	}
	return n
}

// LayerMap holds one ArchLayerMap per architecture name.
type LayerMap map[string]ArchLayerMap

// BuildLayerMap derives each architecture's layout from the first model in
// its list, in that model's own layer order. Callers must have run
// CheckConsistency first so any model is representative of its architecture.
func BuildLayerMap(reprs map[string][]*weights.Model) (LayerMap, error) {
	lm := make(LayerMap, len(reprs))

	archs := maps.Keys(reprs)
	slices.Sort(archs)

	for _, arch := range archs {
		models := reprs[arch]
		if len(models) == 0 {
			return nil, fmt.Errorf("architecture %s: no models to build a layer map from", arch)
		}

		ref := models[0]
		alm := make(ArchLayerMap, 0, ref.Len())
		for _, name := range ref.LayerNames() {
			t, _ := ref.Get(name)
			alm = append(alm, LayerEntry{Name: name, Length: t.Elements()})
		}

		lm[arch] = alm
	}

	return lm, nil
}
