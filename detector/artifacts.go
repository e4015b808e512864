package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// MissingArtifactError is returned when infer runs without a prior
// successful configure: one of the persisted artifacts is absent.
type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing learned artifact %s: run configure before infer", e.Path)
}

// manifest records the provenance of one successful configure run.
type manifest struct {
	RunID         string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	Architectures []string  `json:"architectures"`
	Models        int       `json:"models"`
}

func newManifest(archs []string, models int) manifest {
	return manifest{
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Architectures: archs,
		Models:        models,
	}
}

// writeFileAtomic writes via a temp file in the destination directory and
// renames into place, so readers never observe a partial artifact.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}

	return os.Rename(f.Name(), path)
}

func saveCBOR(path string, v any) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func loadCBOR(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &MissingArtifactError{Path: path}
	}
	if err != nil {
		return err
	}
	return cbor.Unmarshal(data, v)
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}
