package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ArtifactStore persists the opaque authentication state between runs.
type ArtifactStore interface {
	// Load returns the saved artifact, or nil when none exists.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Location() string
}

// FileArtifacts stores the artifact in a single file.
type FileArtifacts struct {
	Path string
}

// Load implements ArtifactStore.
func (f FileArtifacts) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session artifact: %w", err)
	}
	return data, nil
}

// Save writes to a temporary file and renames it over the artifact so a
// concurrent reader never sees a partial file.
func (f FileArtifacts) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replacing session artifact: %w", err)
	}
	return nil
}

// Location implements ArtifactStore.
func (f FileArtifacts) Location() string { return f.Path }
