package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/explorer"
)

// ErrSessionNotFound is returned by Load when no checkpoint exists.
var ErrSessionNotFound = errors.New("session not found")

// DBPool abstracts the pgx pool so stores can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (DBPool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to database")
	return pool, nil
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    data JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const upsertSessionSQL = `
INSERT INTO sessions (id, status, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = now();`

const selectSessionSQL = `SELECT data FROM sessions WHERE id = $1;`

// execQuerier is the narrow slice of DBPool the session store needs.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore checkpoints sessions as jsonb rows.
type PostgresStore struct {
	db     execQuerier
	logger *zap.Logger
}

// NewPostgresStore ensures the sessions table exists.
func NewPostgresStore(ctx context.Context, db DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createSessionsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure sessions schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger.Named("store_pg")}, nil
}

// Save upserts the session checkpoint.
func (s *PostgresStore) Save(ctx context.Context, sess *explorer.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
	}
	if _, err := s.db.Exec(ctx, upsertSessionSQL, sess.ID, string(sess.Status), data); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	s.logger.Debug("Session checkpoint saved", zap.String("session_id", sess.ID))
	return nil
}

// Load restores a session checkpoint by id.
func (s *PostgresStore) Load(ctx context.Context, id string) (*explorer.Session, error) {
	var data []byte
	if err := s.db.QueryRow(ctx, selectSessionSQL, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var sess explorer.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}
