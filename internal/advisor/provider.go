package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

var (
	// ErrNoAdvisorAvailable is the gateway's only hard failure: every
	// configured backend is open and still inside its reset timeout.
	ErrNoAdvisorAvailable = errors.New("no advisor backend available")

	// ErrMalformedResponse marks advisor output that could not be parsed
	// into the expected structure. It is a local failure of the call, not a
	// backend health failure.
	ErrMalformedResponse = errors.New("malformed advisor response")
)

// Backend is one advisor provider. Implementations own their transport,
// prompt rendering and response parsing; parse failures are reported by
// wrapping ErrMalformedResponse.
type Backend interface {
	Name() string
	RequestDecision(ctx context.Context, dc schemas.DecisionContext) (schemas.ActionDecision, schemas.TokenUsage, error)
	AnalyzeFinding(ctx context.Context, f schemas.Finding) (schemas.FindingAnalysis, schemas.TokenUsage, error)
	Summarize(ctx context.Context, history []schemas.StepOutcome, findings []schemas.Finding) (string, schemas.TokenUsage, error)
	HealthCheck(ctx context.Context) bool
}

// completer is the minimal text-in/text-out surface a provider transport must
// offer. textBackend layers the shared prompt/parse logic on top so the three
// transports stay thin.
type completer interface {
	Name() string
	complete(ctx context.Context, system, user string) (string, schemas.TokenUsage, error)
}

// textBackend adapts a raw completer into a full Backend using the shared
// prompt builders and the strict parse boundary.
type textBackend struct {
	completer
}

func newTextBackend(c completer) Backend {
	return &textBackend{completer: c}
}

func (b *textBackend) RequestDecision(ctx context.Context, dc schemas.DecisionContext) (schemas.ActionDecision, schemas.TokenUsage, error) {
	system, user := buildDecisionPrompt(dc)
	raw, usage, err := b.complete(ctx, system, user)
	if err != nil {
		return schemas.ActionDecision{}, usage, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	decision, err := parseDecision(raw)
	if err != nil {
		return schemas.ActionDecision{}, usage, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	return decision, usage, nil
}

func (b *textBackend) AnalyzeFinding(ctx context.Context, f schemas.Finding) (schemas.FindingAnalysis, schemas.TokenUsage, error) {
	system, user := buildAnalysisPrompt(f)
	raw, usage, err := b.complete(ctx, system, user)
	if err != nil {
		return schemas.FindingAnalysis{}, usage, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	analysis, err := parseAnalysis(raw)
	if err != nil {
		return schemas.FindingAnalysis{}, usage, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	return analysis, usage, nil
}

func (b *textBackend) Summarize(ctx context.Context, history []schemas.StepOutcome, findings []schemas.Finding) (string, schemas.TokenUsage, error) {
	system, user := buildSummaryPrompt(history, findings)
	raw, usage, err := b.complete(ctx, system, user)
	if err != nil {
		return "", usage, fmt.Errorf("backend %s: %w", b.Name(), err)
	}
	return raw, usage, nil
}

// HealthCheck issues a minimal completion. Any transport error counts as
// unhealthy; content is irrelevant.
func (b *textBackend) HealthCheck(ctx context.Context) bool {
	_, _, err := b.complete(ctx, "You are a health check. Reply with the single word OK.", "ping")
	return err == nil
}
