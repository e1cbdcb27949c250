package findings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/store"
)

const createFindingsTableSQL = `
CREATE TABLE IF NOT EXISTS findings (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    severity TEXT NOT NULL,
    page_url TEXT NOT NULL,
    step INT NOT NULL,
    source TEXT NOT NULL,
    evidence TEXT,
    recommendation TEXT,
    discovered_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_session ON findings (session_id);`

// PostgresPersister writes finding batches to PostgreSQL with pgx.CopyFrom.
type PostgresPersister struct {
	db     store.DBPool
	logger *zap.Logger
}

// NewPostgresPersister ensures the findings table exists and returns the
// persister. The pool is shared with the session store; Close here is a
// no-op so the owner controls pool lifetime.
func NewPostgresPersister(ctx context.Context, db store.DBPool, logger *zap.Logger) (*PostgresPersister, error) {
	if _, err := db.Exec(ctx, createFindingsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure findings schema: %w", err)
	}
	return &PostgresPersister{db: db, logger: logger.Named("findings_pg")}, nil
}

// Persist copies a batch into the findings table.
func (p *PostgresPersister) Persist(ctx context.Context, batch []schemas.Finding) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, f := range batch {
		rows = append(rows, []interface{}{
			f.ID, f.SessionID, f.Title, f.Description, string(f.Severity),
			f.PageURL, f.Step, f.Source, f.Evidence, f.Recommendation,
			f.DiscoveredAt,
		})
	}

	copyCount, err := p.db.CopyFrom(
		ctx,
		pgx.Identifier{"findings"},
		[]string{"id", "session_id", "title", "description", "severity", "page_url", "step", "source", "evidence", "recommendation", "discovered_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy findings batch: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// Close is a no-op; the shared pool is owned elsewhere.
func (p *PostgresPersister) Close(ctx context.Context) error { return nil }
