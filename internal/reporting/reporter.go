package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/explorer"
)

// Reporter renders terminal results to disk in the configured format.
type Reporter struct {
	cfg    config.ReportConfig
	logger *zap.Logger
}

// New builds a reporter and ensures the output directory exists.
func New(cfg config.ReportConfig, logger *zap.Logger) (*Reporter, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", cfg.OutputDir, err)
	}
	return &Reporter{cfg: cfg, logger: logger.Named("Reporter")}, nil
}

// Write renders the result and returns the path of the written report.
func (r *Reporter) Write(result *explorer.Result) (string, error) {
	var (
		data []byte
		ext  string
		err  error
	)
	switch r.cfg.Format {
	case "json":
		ext = "json"
		data, err = json.MarshalIndent(result, "", "  ")
	case "markdown":
		ext = "md"
		data = []byte(renderMarkdown(result))
	default:
		return "", fmt.Errorf("unsupported report format %q", r.cfg.Format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("exploration-%s.%s", result.SessionID, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	r.logger.Info("Report written", zap.String("path", path))
	return path, nil
}

// severityOrder controls finding grouping in the markdown report.
var severityOrder = []schemas.Severity{
	schemas.SeverityCritical,
	schemas.SeverityHigh,
	schemas.SeverityMedium,
	schemas.SeverityLow,
	schemas.SeverityInfo,
}

func renderMarkdown(result *explorer.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Exploration Report\n\n")
	fmt.Fprintf(&b, "- **Target:** %s\n", result.TargetURL)
	fmt.Fprintf(&b, "- **Session:** `%s`\n", result.SessionID)
	fmt.Fprintf(&b, "- **Steps:** %d\n", result.TotalSteps)
	fmt.Fprintf(&b, "- **Duration:** %s\n", result.Duration.Round(time.Second))
	fmt.Fprintf(&b, "- **Stopped:** %s\n", result.StoppedReason)
	fmt.Fprintf(&b, "- **Findings:** %d\n", len(result.Findings))
	fmt.Fprintf(&b, "- **Tokens:** %d prompt / %d completion\n\n",
		result.TokenUsage.PromptTokens, result.TokenUsage.CompletionTokens)
	if result.Error != "" {
		fmt.Fprintf(&b, "> Stopped on error: %s\n\n", result.Error)
	}

	if result.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", result.Summary)
	}

	if len(result.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for _, sev := range severityOrder {
			var group []schemas.Finding
			for _, f := range result.Findings {
				if f.Severity == sev {
					group = append(group, f)
				}
			}
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s (%d)\n\n", strings.ToUpper(string(sev)), len(group))
			for _, f := range group {
				fmt.Fprintf(&b, "- **%s** — %s (step %d)\n", f.Title, f.PageURL, f.Step)
				if f.Description != "" {
					fmt.Fprintf(&b, "  - %s\n", f.Description)
				}
				if f.Recommendation != "" {
					fmt.Fprintf(&b, "  - Recommendation: %s\n", f.Recommendation)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(result.History) > 0 {
		b.WriteString("## Action Log\n\n")
		b.WriteString("| Step | Action | Result | URL |\n|---|---|---|---|\n")
		for _, h := range result.History {
			status := "ok"
			if !h.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", h.Step, h.Decision.Summary(), status, h.ResultURL)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FromSession reconstructs a renderable result from a stored checkpoint, for
// the report command. Findings bodies live in the sink's storage, not the
// session, so only their count is available here.
func FromSession(sess *explorer.Session, findings []schemas.Finding) *explorer.Result {
	reason := explorer.StopCompleted
	switch sess.Status {
	case explorer.StatusError:
		reason = explorer.StopError
	case explorer.StatusPaused, explorer.StatusRunning, explorer.StatusIdle:
		reason = explorer.StopPaused
	}
	return &explorer.Result{
		SessionID:     sess.ID,
		TargetURL:     sess.TargetURL,
		TotalSteps:    sess.CurrentStep,
		Duration:      sess.UpdatedAt.Sub(sess.StartedAt),
		StoppedReason: reason,
		Findings:      findings,
		History:       sess.History,
		TokenUsage:    sess.TokenUsage,
		Summary:       sess.Summary,
		Error:         sess.LastError,
	}
}
