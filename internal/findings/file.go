package findings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// FilePersister appends findings to a JSONL file, one finding per line. The
// default sink when no database is configured.
type FilePersister struct {
	file *os.File
}

// NewFilePersister opens (or creates) the JSONL file for appending.
func NewFilePersister(path string) (*FilePersister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create findings directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open findings file: %w", err)
	}
	return &FilePersister{file: f}, nil
}

// Persist writes each finding as one JSON line.
func (p *FilePersister) Persist(_ context.Context, batch []schemas.Finding) error {
	enc := json.NewEncoder(p.file)
	for _, f := range batch {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to append finding %s: %w", f.ID, err)
		}
	}
	return p.file.Sync()
}

// Close closes the underlying file.
func (p *FilePersister) Close(_ context.Context) error {
	return p.file.Close()
}
