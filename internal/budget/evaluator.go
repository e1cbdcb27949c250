package budget

import (
	"fmt"
	"time"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// Exit reasons reported in evaluations.
const (
	ReasonTimeLimit          = "time limit"
	ReasonMaxActions         = "max actions"
	ReasonSufficientFindings = "sufficient findings"
	ReasonPageComplete       = "page complete"
	ReasonIncomplete         = "coverage incomplete"
)

// Evaluation is the outcome of one exit-criteria check. Pending lists the
// unmet sub-criteria when the page is judged incomplete, for diagnostics and
// advisor hints.
type Evaluation struct {
	ShouldExit bool
	Reason     string
	Confidence float64
	Pending    []string
}

// Evaluator decides whether to keep exploring the current page. It is a pure
// function of the page context, the clock and its static configuration; it
// holds no other state and may be called after every action.
type Evaluator struct {
	cfg config.PageBudgetConfig
}

// New builds an evaluator from its configuration.
func New(cfg config.PageBudgetConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate applies the exit rules in order; the first matching rule wins.
//
//  1. time on page >= max         -> exit, 1.0
//  2. actions on page >= max      -> exit, 1.0
//  3. bugs on page >= threshold   -> exit, 0.9
//  4. coverage complete           -> exit, 0.8; otherwise continue, 0.4
func (e *Evaluator) Evaluate(pc *PageContext, now time.Time) Evaluation {
	if e.cfg.MaxTimePerPage > 0 && now.Sub(pc.EnteredAt) >= e.cfg.MaxTimePerPage {
		return Evaluation{ShouldExit: true, Reason: ReasonTimeLimit, Confidence: 1.0}
	}
	if len(pc.Actions) >= e.cfg.MaxActionsPerPage {
		return Evaluation{ShouldExit: true, Reason: ReasonMaxActions, Confidence: 1.0}
	}
	if e.cfg.ExitAfterBugsFound > 0 && pc.BugsFound >= e.cfg.ExitAfterBugsFound {
		return Evaluation{ShouldExit: true, Reason: ReasonSufficientFindings, Confidence: 0.9}
	}

	pending := e.pendingCriteria(pc)
	if len(pending) == 0 {
		return Evaluation{ShouldExit: true, Reason: ReasonPageComplete, Confidence: 0.8}
	}
	return Evaluation{ShouldExit: false, Reason: ReasonIncomplete, Confidence: 0.4, Pending: pending}
}

// pendingCriteria lists what still stands between this page and completeness:
// required tools not yet run and any element-interaction shortfall.
func (e *Evaluator) pendingCriteria(pc *PageContext) []string {
	var pending []string
	for _, tool := range e.cfg.RequiredTools {
		if !pc.ToolsRun[tool] {
			pending = append(pending, fmt.Sprintf("tool %s not run", tool))
		}
	}
	if touched := len(pc.ElementsTouched); touched < e.cfg.MinElementInteractions {
		pending = append(pending, fmt.Sprintf("element interactions %d/%d", touched, e.cfg.MinElementInteractions))
	}
	return pending
}
