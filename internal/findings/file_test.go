// File: internal/findings/file_test.go
package findings

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

func TestFilePersister_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "findings.jsonl")
	p, err := NewFilePersister(path)
	require.NoError(t, err, "missing parent directories are created")

	batch := []schemas.Finding{
		{ID: "f-1", SessionID: "s-1", Title: "Broken image", Severity: schemas.SeverityLow, PageURL: "https://example.com", DiscoveredAt: time.Now().UTC()},
		{ID: "f-2", SessionID: "s-1", Title: "Dead link", Severity: schemas.SeverityInfo, PageURL: "https://example.com", DiscoveredAt: time.Now().UTC()},
	}
	require.NoError(t, p.Persist(context.Background(), batch))
	require.NoError(t, p.Persist(context.Background(), batch[:1]), "subsequent batches append")
	require.NoError(t, p.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []schemas.Finding
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got schemas.Finding
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &got))
		lines = append(lines, got)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 3)
	assert.Equal(t, "f-1", lines[0].ID)
	assert.Equal(t, "f-2", lines[1].ID)
	assert.Equal(t, "f-1", lines[2].ID)
}

func TestFilePersister_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")
	ctx := context.Background()

	p1, err := NewFilePersister(path)
	require.NoError(t, err)
	require.NoError(t, p1.Persist(ctx, []schemas.Finding{{ID: "f-1", Title: "A"}}))
	require.NoError(t, p1.Close(ctx))

	// A second run against the same file must not truncate the first run's
	// findings.
	p2, err := NewFilePersister(path)
	require.NoError(t, err)
	require.NoError(t, p2.Persist(ctx, []schemas.Finding{{ID: "f-2", Title: "B"}}))
	require.NoError(t, p2.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"f-1"`)
	assert.Contains(t, string(data), `"f-2"`)
}
