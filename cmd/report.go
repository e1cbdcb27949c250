// File: cmd/report.go
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/explorer"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/observability"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/reporting"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/store"
)

var reportSessionID string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate the report for a stored session",
	Long: `Loads a session checkpoint by ID, joins it with any findings persisted
during the run, and renders a fresh report in the configured format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), observability.GetLogger(), reportSessionID)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSessionID, "session-id", "", "the session to report on (required)")
	_ = reportCmd.MarkFlagRequired("session-id")
	rootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, logger *zap.Logger, sessionID string) error {
	cfg := appCfg

	var (
		sessionStore explorer.SessionStore
		err          error
	)
	if cfg.Database.URL != "" {
		pool, connErr := store.Connect(ctx, cfg.Database.URL, logger)
		if connErr != nil {
			return connErr
		}
		defer pool.Close()
		sessionStore, err = store.NewPostgresStore(ctx, pool, logger)
	} else {
		sessionStore, err = store.NewFileStore(cfg.Store.Dir, logger)
	}
	if err != nil {
		return err
	}

	sess, err := sessionStore.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	// Finding bodies live in the sink's own storage. For file-backed runs
	// the JSONL log is right there; for postgres the session carries only
	// the IDs, and the report degrades to the action log and summary.
	found := readFindingsLog(cfg.Findings.File, sessionID, logger)

	reporter, err := reporting.New(cfg.Report, logger)
	if err != nil {
		return err
	}
	path, err := reporter.Write(reporting.FromSession(sess, found))
	if err != nil {
		return err
	}
	fmt.Printf("Report: %s\n", path)
	return nil
}

// readFindingsLog scans the JSONL sink output for this session's findings.
// A missing file is not an error; the run may have used postgres.
func readFindingsLog(path, sessionID string, logger *zap.Logger) []schemas.Finding {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []schemas.Finding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var finding schemas.Finding
		if err := json.Unmarshal(scanner.Bytes(), &finding); err != nil {
			logger.Warn("Skipping malformed findings log line", zap.Error(err))
			continue
		}
		if finding.SessionID == sessionID {
			out = append(out, finding)
		}
	}
	return out
}
