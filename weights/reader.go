package weights

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"trojascan/format"
)

// GroundTruthFile is the single-line label file expected beside each model
// during training.
const GroundTruthFile = "ground_truth.csv"

// Load reads the serialized model under dir, detects its architecture
// against the table and pads its head layers to their canonical shapes.
func Load(dir string, table ArchTable) (*Model, error) {
	// Slice, not map: when a directory somehow holds both files the torch
	// checkpoint wins every run.
	readers := []struct {
		name string
		read func(string) (*Model, error)
	}{
		{"model.pt", readTorch},
		{"model.safetensors", readSafetensors},
	}

	for _, r := range readers {
		p := filepath.Join(dir, r.name)
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}

		m, err := r.read(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}

		arch, err := table.Detect(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		m.Arch = arch

		if err := table.PadModel(m); err != nil {
			return nil, err
		}

		slog.Debug("loaded model", "path", p, "arch", arch, "layers", m.Len(), "size", format.HumanBytes(fi.Size()))
		return m, nil
	}

	return nil, fmt.Errorf("%s: no model.pt or model.safetensors found", dir)
}

// LoadGroundTruth reads the poisoning label from the first line of the
// model directory's ground truth file.
func LoadGroundTruth(dir string) (float64, error) {
	p := filepath.Join(dir, GroundTruthFile)
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("%s: empty ground truth file", p)
	}

	label, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}

	return label, nil
}
