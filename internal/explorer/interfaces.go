package explorer

import (
	"context"
	"time"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/tools"
)

// Browser is the automation adapter the machine drives. Implementations
// retry transient failures internally; the machine only sees the final
// outcome of each action.
type Browser interface {
	Navigate(ctx context.Context, url string) (time.Duration, error)
	Click(ctx context.Context, selector string) (time.Duration, error)
	Fill(ctx context.Context, selector, value string) (time.Duration, error)
	Select(ctx context.Context, selector, value string) (time.Duration, error)
	Hover(ctx context.Context, selector string) (time.Duration, error)
	Scroll(ctx context.Context, direction string) (time.Duration, error)
	GoBack(ctx context.Context) (time.Duration, error)
	Refresh(ctx context.Context) (time.Duration, error)
	Observe(ctx context.Context) (schemas.PageObservation, error)
	Evaluate(ctx context.Context, expression string, out any) error
}

// Advisor is the machine's view of the decision gateway.
type Advisor interface {
	RequestDecision(ctx context.Context, dc schemas.DecisionContext) (schemas.ActionDecision, error)
	AnalyzeFinding(ctx context.Context, f schemas.Finding) (schemas.FindingAnalysis, error)
	Summarize(ctx context.Context, history []schemas.StepOutcome, findings []schemas.Finding) (string, error)
	Usage() schemas.TokenUsage
}

// ToolRunner exposes the registered page tools.
type ToolRunner interface {
	Definitions() []schemas.ToolDefinition
	Invoke(ctx context.Context, name string, params map[string]any, ec tools.ExecutionContext) schemas.ToolResult
}

// FindingSink deduplicates and persists findings. Register reports whether
// the finding was accepted (not a duplicate).
type FindingSink interface {
	Register(ctx context.Context, f schemas.Finding) bool
	All() []schemas.Finding
	Count() int
	Flush(ctx context.Context) error
}

// SessionStore checkpoints sessions.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
}

// Suggester produces ranked candidate actions for the advisor prompt. The
// machine consumes the suggestion list; it never depends on which personas
// produced it.
type Suggester interface {
	Suggest(obs schemas.PageObservation, history []schemas.StepOutcome) []schemas.SuggestedAction
}
