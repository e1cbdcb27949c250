package findings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// Persister is the storage backend of a Collector. Implementations persist
// batches durably; dedup happens above them.
type Persister interface {
	Persist(ctx context.Context, batch []schemas.Finding) error
	Close(ctx context.Context) error
}

// Collector is the finding sink: it deduplicates by (title, page URL),
// keeps the accepted findings in memory for the terminal report, and batches
// them into a Persister. Persistence failures are logged and swallowed — a
// lost finding never aborts a session.
type Collector struct {
	logger    *zap.Logger
	persister Persister
	batchSize int

	mu       sync.Mutex
	index    map[string]string // dedup key -> finding id
	accepted []schemas.Finding
	buffer   []schemas.Finding
}

// NewCollector builds a collector over the given persister.
func NewCollector(logger *zap.Logger, persister Persister, batchSize int) *Collector {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Collector{
		logger:    logger.Named("Findings"),
		persister: persister,
		batchSize: batchSize,
		index:     map[string]string{},
	}
}

func dedupKey(title, pageURL string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + pageURL
}

// IsDuplicate reports the id of an already-registered finding with the same
// title and page URL, if any.
func (c *Collector) IsDuplicate(title, pageURL string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.index[dedupKey(title, pageURL)]
	return id, ok
}

// Register accepts a finding if it is not a duplicate. Accepted findings are
// indexed, retained for reporting and buffered for persistence. The return
// value reports acceptance.
func (c *Collector) Register(ctx context.Context, f schemas.Finding) bool {
	key := dedupKey(f.Title, f.PageURL)

	c.mu.Lock()
	if _, dup := c.index[key]; dup {
		c.mu.Unlock()
		return false
	}
	c.index[key] = f.ID
	c.accepted = append(c.accepted, f)
	c.buffer = append(c.buffer, f)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		if err := c.Flush(ctx); err != nil {
			c.logger.Error("Failed to persist findings batch", zap.Error(err))
		}
	}
	return true
}

// All returns the accepted findings in acceptance order.
func (c *Collector) All() []schemas.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.Finding, len(c.accepted))
	copy(out, c.accepted)
	return out
}

// Count returns how many findings have been accepted.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.accepted)
}

// Flush persists the buffered findings.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := make([]schemas.Finding, len(c.buffer))
	copy(batch, c.buffer)
	c.buffer = c.buffer[:0]
	c.mu.Unlock()

	if err := c.persister.Persist(ctx, batch); err != nil {
		return fmt.Errorf("failed to persist %d finding(s): %w", len(batch), err)
	}
	c.logger.Debug("Persisted findings batch", zap.Int("count", len(batch)))
	return nil
}

// Close flushes the remaining buffer and closes the persister.
func (c *Collector) Close(ctx context.Context) error {
	flushErr := c.Flush(ctx)
	closeErr := c.persister.Close(ctx)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
