package loopguard

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// Requeryer is the slice of the decision gateway the guard needs for
// corrective re-queries.
type Requeryer interface {
	RequestDecision(ctx context.Context, dc schemas.DecisionContext) (schemas.ActionDecision, error)
}

// Guard detects degenerate decision patterns and corrects them with a single
// re-query per step. It is owned by one session and is not safe for
// concurrent use.
type Guard struct {
	logger *zap.Logger
	cfg    config.LoopGuardConfig

	toolWindow   *window
	actionWindow *window
	// toolsByURL maps a page URL to the set of tool names already run
	// there. Unlike the rolling windows, this map never evicts; it backs
	// the same-page saturation check.
	toolsByURL map[string]map[string]bool
}

// New builds a guard from its configuration.
func New(cfg config.LoopGuardConfig, logger *zap.Logger) *Guard {
	return &Guard{
		logger:       logger.Named("LoopGuard"),
		cfg:          cfg,
		toolWindow:   newWindow(cfg.ToolWindowSize),
		actionWindow: newWindow(cfg.ActionWindowSize),
		toolsByURL:   map[string]map[string]bool{},
	}
}

// Validate runs the candidate decision through the loop checks, in order:
// tool loop, action loop, empty navigation. The first check that fires
// replaces the candidate via one corrective re-query; the corrected decision
// is NOT re-checked, bounding advisor calls to two per step. A failed
// re-query falls back to the original candidate rather than stalling the
// step. The returned bool reports whether a correction happened.
func (g *Guard) Validate(ctx context.Context, dc schemas.DecisionContext, candidate schemas.ActionDecision, gateway Requeryer, unvisited []string) (schemas.ActionDecision, bool) {
	if candidate.Kind == schemas.ActionInvokeTool {
		sig := ToolSignature(candidate.ToolName, candidate.ToolParams)
		if g.toolWindow.count(sig) >= g.cfg.ToolLoopThreshold-1 {
			directive := &schemas.Directive{
				Avoid: fmt.Sprintf("You have already run tool %q with these parameters; do not repeat it.", candidate.ToolName),
			}
			// Same-page saturation: the tool was already exercised on this
			// URL, so tools are withdrawn entirely and navigation is
			// steered toward unexplored ground.
			if g.toolUsedOn(dc.Observation.URL, candidate.ToolName) {
				directive.OmitTools = true
				directive.NavigationHints = unvisited
			}
			g.logger.Info("Tool loop detected, re-querying advisor",
				zap.String("signature", sig),
				zap.Bool("omit_tools", directive.OmitTools))
			return g.requery(ctx, dc, candidate, gateway, directive), true
		}
	}

	actionSig := ActionSignature(candidate)
	if g.actionWindow.count(actionSig) >= g.cfg.ActionLoopThreshold-1 {
		directive := &schemas.Directive{
			Avoid: fmt.Sprintf("You have repeated the action %q; choose a different action.", candidate.Summary()),
		}
		g.logger.Info("Action loop detected, re-querying advisor", zap.String("signature", actionSig))
		corrected := g.requery(ctx, dc, candidate, gateway, directive)
		// Clear the window so the corrective choice itself is not flagged
		// as a loop on the next steps.
		g.actionWindow.clear()
		return corrected, true
	}

	if candidate.Kind == schemas.ActionNavigate && strings.TrimSpace(candidate.Value) == "" {
		directive := &schemas.Directive{
			Avoid: "Your previous choice was invalid: navigate requires a non-empty URL.",
		}
		g.logger.Info("Empty navigation target, re-querying advisor")
		return g.requery(ctx, dc, candidate, gateway, directive), true
	}

	return candidate, false
}

// Record appends an accepted decision's signatures to the rolling windows
// and, for tool invocations, to the per-URL usage map. Call it exactly once
// per executed decision, corrected or not.
func (g *Guard) Record(d schemas.ActionDecision, pageURL string) {
	g.actionWindow.append(ActionSignature(d))
	if d.Kind == schemas.ActionInvokeTool {
		g.toolWindow.append(ToolSignature(d.ToolName, d.ToolParams))
		used := g.toolsByURL[pageURL]
		if used == nil {
			used = map[string]bool{}
			g.toolsByURL[pageURL] = used
		}
		used[d.ToolName] = true
	}
}

// ClearActionWindow drops the rolling action history. The state machine
// calls this on page transitions so a new page starts with a clean slate.
func (g *Guard) ClearActionWindow() {
	g.actionWindow.clear()
}

// ToolsUsedOn returns the set of tool names already run on the URL.
func (g *Guard) ToolsUsedOn(pageURL string) map[string]bool {
	return g.toolsByURL[pageURL]
}

func (g *Guard) toolUsedOn(pageURL, toolName string) bool {
	return g.toolsByURL[pageURL][toolName]
}

func (g *Guard) requery(ctx context.Context, dc schemas.DecisionContext, original schemas.ActionDecision, gateway Requeryer, directive *schemas.Directive) schemas.ActionDecision {
	amended := dc
	amended.Directive = directive
	corrected, err := gateway.RequestDecision(ctx, amended)
	if err != nil {
		g.logger.Warn("Corrective re-query failed, keeping original decision", zap.Error(err))
		return original
	}
	return corrected
}
