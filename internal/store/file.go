package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/explorer"
)

// FileStore checkpoints sessions as pretty-printed JSON files under a
// directory, one file per session. The fallback when no database is
// configured.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the checkpoint directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger.Named("store_file")}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the checkpoint atomically via a temp file rename.
func (s *FileStore) Save(_ context.Context, sess *explorer.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
	}
	tmp := s.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path(sess.ID)); err != nil {
		return fmt.Errorf("failed to commit session checkpoint: %w", err)
	}
	s.logger.Debug("Session checkpoint saved", zap.String("session_id", sess.ID))
	return nil
}

// Load restores a session checkpoint by id.
func (s *FileStore) Load(_ context.Context, id string) (*explorer.Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var sess explorer.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}
