package features

import (
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"trojascan/weights"
)

// LayerMismatchError reports a model whose layer-name set differs from its
// architecture's reference model. It indicates a malformed training corpus
// and aborts configuration.
type LayerMismatchError struct {
	Arch  string
	Model int // index within the architecture's model list

	// Layer names absent from / unexpected in the offending model,
	// relative to the reference model.
	Missing []string
	Extra   []string
}

func (e *LayerMismatchError) Error() string {
	return fmt.Sprintf("architecture %s: model %d layer set differs from reference (missing %v, extra %v)",
		e.Arch, e.Model, e.Missing, e.Extra)
}

// CheckConsistency verifies that, within each architecture, every model
// exposes exactly the reference (first) model's layer-name set. Tensor
// values are irrelevant; only names are compared. This gate runs before
// layer-map construction and before any flattening.
func CheckConsistency(reprs map[string][]*weights.Model) error {
	archs := maps.Keys(reprs)
	slices.Sort(archs)

	for _, arch := range archs {
		models := reprs[arch]
		if len(models) == 0 {
			continue
		}

		ref := make(map[string]struct{}, models[0].Len())
		for _, name := range models[0].LayerNames() {
			ref[name] = struct{}{}
		}

		for i, m := range models[1:] {
			var missing, extra []string

			seen := make(map[string]struct{}, m.Len())
			for _, name := range m.LayerNames() {
				seen[name] = struct{}{}
				if _, ok := ref[name]; !ok {
					extra = append(extra, name)
				}
			}
			for name := range ref {
				if _, ok := seen[name]; !ok {
					missing = append(missing, name)
				}
			}

			if len(missing) > 0 || len(extra) > 0 {
				slices.Sort(missing)
				slices.Sort(extra)
				return &LayerMismatchError{Arch: arch, Model: i + 1, Missing: missing, Extra: extra}
			}
		}
	}

	return nil
}
