package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// providerEntry pairs a backend with its health record. Entries are held in
// a slice to preserve the configured priority order; no name-keyed lookups
// on the call path.
type providerEntry struct {
	name    string
	backend Backend
	health  *healthRecord
}

// Gateway fronts the advisor pool with circuit breaking and a single-step
// fallback. It is safe for concurrent use; health records and the usage
// accumulator are guarded by mu since the gateway may be shared across
// sessions.
type Gateway struct {
	logger  *zap.Logger
	cfg     config.AdvisorConfig
	entries []providerEntry
	limiter *rate.Limiter

	mu    sync.Mutex
	usage schemas.TokenUsage

	// now is swappable in tests to step through reset timeouts.
	now func() time.Time
}

// NewGateway builds a gateway over backends in the given order. The order is
// the priority order; backends[0] is the preferred provider.
func NewGateway(logger *zap.Logger, cfg config.AdvisorConfig, backends []Backend) (*Gateway, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one advisor backend must be provided")
	}
	entries := make([]providerEntry, 0, len(backends))
	for _, b := range backends {
		entries = append(entries, providerEntry{
			name:    b.Name(),
			backend: b,
			health: newHealthRecord(
				cfg.Breaker.FailureThreshold,
				cfg.Breaker.SuccessThreshold,
				cfg.Breaker.ResetTimeout,
			),
		})
	}
	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Gateway{
		logger:  logger.Named("Gateway"),
		cfg:     cfg,
		entries: entries,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}, nil
}

// RequestDecision asks the pool for the next action. Parse failures never
// surface: they degrade to a safe default `done` decision with the parse
// failure recorded in its reasoning. The only hard failure is
// ErrNoAdvisorAvailable (or both attempted backends failing).
func (g *Gateway) RequestDecision(ctx context.Context, dc schemas.DecisionContext) (schemas.ActionDecision, error) {
	var decision schemas.ActionDecision
	name, err := g.execute(ctx, "requestDecision", func(callCtx context.Context, b Backend) error {
		d, usage, callErr := b.RequestDecision(callCtx, dc)
		g.addUsage(usage)
		if callErr != nil {
			return callErr
		}
		decision = d
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			g.logger.Warn("Advisor response unparsable, substituting default decision",
				zap.String("backend", name), zap.Error(err))
			return schemas.DefaultDecision(fmt.Sprintf("advisor output could not be parsed (%s); stopping safely", name)), nil
		}
		return schemas.ActionDecision{}, err
	}
	decision.ClampConfidence()
	return decision, nil
}

// AnalyzeFinding asks the pool to grade and annotate a raw finding. Errors
// (including parse failures) are returned to the caller, who treats
// enrichment as best-effort.
func (g *Gateway) AnalyzeFinding(ctx context.Context, f schemas.Finding) (schemas.FindingAnalysis, error) {
	var analysis schemas.FindingAnalysis
	_, err := g.execute(ctx, "analyzeFinding", func(callCtx context.Context, b Backend) error {
		a, usage, callErr := b.AnalyzeFinding(callCtx, f)
		g.addUsage(usage)
		if callErr != nil {
			return callErr
		}
		analysis = a
		return nil
	})
	if err != nil {
		return schemas.FindingAnalysis{}, err
	}
	return analysis, nil
}

// Summarize produces a closing narrative over the session history.
func (g *Gateway) Summarize(ctx context.Context, history []schemas.StepOutcome, findings []schemas.Finding) (string, error) {
	var summary string
	_, err := g.execute(ctx, "summarize", func(callCtx context.Context, b Backend) error {
		s, usage, callErr := b.Summarize(callCtx, history, findings)
		g.addUsage(usage)
		if callErr != nil {
			return callErr
		}
		summary = s
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

// BackendHealth is a point-in-time health snapshot of one backend.
type BackendHealth struct {
	Name    string
	State   string
	Healthy bool
}

// HealthCheck probes every backend directly, bypassing breaker state. Meant
// for diagnostics, not the decision path.
func (g *Gateway) HealthCheck(ctx context.Context) []BackendHealth {
	out := make([]BackendHealth, 0, len(g.entries))
	for i := range g.entries {
		e := &g.entries[i]
		healthy := e.backend.HealthCheck(ctx)
		g.mu.Lock()
		state := string(e.health.state)
		g.mu.Unlock()
		out = append(out, BackendHealth{Name: e.name, State: state, Healthy: healthy})
	}
	return out
}

// Usage returns the accumulated token usage across every call made through
// the gateway.
func (g *Gateway) Usage() schemas.TokenUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

func (g *Gateway) addUsage(u schemas.TokenUsage) {
	g.mu.Lock()
	g.usage.Add(u)
	g.mu.Unlock()
}

// execute runs fn against the pool with provider selection, breaker
// accounting and at most one fallback to a lower-priority backend. It
// returns the name of the last backend attempted.
func (g *Gateway) execute(ctx context.Context, op string, fn func(context.Context, Backend) error) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("advisor rate limit wait: %w", err)
	}

	// With the breaker disabled every call goes to the first configured
	// backend, no health accounting at all.
	if g.cfg.Breaker.Disabled {
		e := &g.entries[0]
		return e.name, g.invoke(ctx, e, fn, false)
	}

	firstIdx := g.selectEligible(0)
	if firstIdx < 0 {
		g.logger.Error("All advisor backends are open", zap.String("op", op))
		return "", ErrNoAdvisorAvailable
	}
	first := &g.entries[firstIdx]

	firstErr := g.invoke(ctx, first, fn, true)
	if firstErr == nil || errors.Is(firstErr, ErrMalformedResponse) {
		// Malformed output is a local call failure; the backend answered,
		// so it stays healthy and no fallback is attempted.
		return first.name, firstErr
	}

	g.logger.Warn("Advisor backend failed, attempting fallback",
		zap.String("op", op),
		zap.String("backend", first.name),
		zap.Error(firstErr))

	// Exactly one more distinct backend, lower in priority than the one
	// that failed. No further rounds.
	secondIdx := g.selectEligible(firstIdx + 1)
	if secondIdx < 0 {
		return first.name, fmt.Errorf("advisor %s failed with no fallback available: %w", first.name, firstErr)
	}
	second := &g.entries[secondIdx]

	secondErr := g.invoke(ctx, second, fn, true)
	if secondErr == nil || errors.Is(secondErr, ErrMalformedResponse) {
		return second.name, secondErr
	}
	return second.name, fmt.Errorf("advisors %s and %s both failed: %v; %w", first.name, second.name, firstErr, secondErr)
}

// selectEligible returns the index of the first eligible backend at or after
// from, or -1. Open records past their reset timeout flip to half-open here.
func (g *Gateway) selectEligible(from int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for i := from; i < len(g.entries); i++ {
		if g.entries[i].health.eligible(now) {
			return i
		}
	}
	return -1
}

// invoke runs fn against one backend under the per-call timeout and applies
// breaker accounting. A malformed response counts as a breaker success: the
// backend was reachable and responsive, the payload just didn't parse.
func (g *Gateway) invoke(ctx context.Context, e *providerEntry, fn func(context.Context, Backend) error, record bool) error {
	callCtx := ctx
	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}

	err := fn(callCtx, e.backend)
	if !record {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		e.health.recordSuccess()
	} else {
		e.health.recordFailure(g.now())
		g.logger.Debug("Recorded advisor failure",
			zap.String("backend", e.name),
			zap.String("state", string(e.health.state)),
			zap.Int("consecutive_failures", e.health.consecutiveFailures))
	}
	return err
}
