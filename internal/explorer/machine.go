package explorer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/budget"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/loopguard"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/tools"
)

// maxNavigationHints bounds the unvisited-location list handed to the
// advisor on corrective re-queries and page advances.
const maxNavigationHints = 5

// Machine sequences one exploration step at a time:
//
//	OBSERVE -> DECIDE -> VALIDATE -> EXECUTE -> INTAKE_FINDINGS -> CHECK_EXIT
//
// Steps run strictly sequentially. Cancellation pauses the session: either
// at the step boundary, or when it surfaces through an in-flight call. All
// collaborators are injected at construction.
type Machine struct {
	logger    *zap.Logger
	session   *Session
	gateway   Advisor
	guard     *loopguard.Guard
	evaluator *budget.Evaluator
	browser   Browser
	tools     ToolRunner
	sink      FindingSink
	store     SessionStore
	suggester Suggester

	checkpointInterval int
	progress           chan<- ProgressEvent

	pageCtx *budget.PageContext
	// advanceDirective carries the page-exit hint into the next DECIDE
	// after CHECK_EXIT chose ADVANCE_PAGE.
	advanceDirective *schemas.Directive

	// visited and linkCounts back the ranked unvisited-location hints.
	visited    map[string]bool
	linkCounts map[string]int

	now func() time.Time
}

// Options carries the optional machine collaborators and tuning.
type Options struct {
	Store              SessionStore
	Suggester          Suggester
	Progress           chan<- ProgressEvent
	CheckpointInterval int
}

// NewMachine wires the state machine. Session, gateway, guard, evaluator,
// browser, tools and sink are required; Options fields may be zero.
func NewMachine(
	logger *zap.Logger,
	session *Session,
	gateway Advisor,
	guard *loopguard.Guard,
	evaluator *budget.Evaluator,
	browser Browser,
	toolRunner ToolRunner,
	sink FindingSink,
	opts Options,
) *Machine {
	interval := opts.CheckpointInterval
	if interval <= 0 {
		interval = 10
	}
	return &Machine{
		logger:             logger.Named("Machine"),
		session:            session,
		gateway:            gateway,
		guard:              guard,
		evaluator:          evaluator,
		browser:            browser,
		tools:              toolRunner,
		sink:               sink,
		store:              opts.Store,
		suggester:          opts.Suggester,
		progress:           opts.Progress,
		checkpointInterval: interval,
		visited:            map[string]bool{},
		linkCounts:         map[string]int{},
		now:                time.Now,
	}
}

// Run drives the session until a terminal condition: the step ceiling, the
// session duration ceiling, an explicit `done` decision, an unrecoverable
// error, or cancellation (which pauses the session after the in-flight step
// settles). It always returns a Result with a stopped reason.
func (m *Machine) Run(ctx context.Context) (*Result, error) {
	if err := m.session.Transition(StatusRunning); err != nil {
		return nil, err
	}
	runStart := m.now()

	// Initial navigation so the first OBSERVE has a page to look at. Resumed
	// sessions start over from the target URL with their history intact.
	if _, err := m.browser.Navigate(ctx, m.session.TargetURL); err != nil {
		if ctx.Err() != nil {
			return m.pause(ctx, runStart)
		}
		return m.fail(ctx, fmt.Errorf("initial navigation to %s failed: %w", m.session.TargetURL, err))
	}

	for {
		// Cancellation between steps only.
		if ctx.Err() != nil {
			return m.pause(ctx, runStart)
		}
		if m.session.CurrentStep >= m.session.MaxSteps {
			m.logger.Info("Step ceiling reached", zap.Int("steps", m.session.CurrentStep))
			return m.finish(ctx, runStart, StopMaxStepsReached)
		}
		if m.session.MaxDuration > 0 && m.now().Sub(runStart) >= m.session.MaxDuration {
			m.logger.Info("Session duration ceiling reached")
			return m.finish(ctx, runStart, StopCompleted)
		}

		done, err := m.step(ctx)
		if err != nil {
			// An interrupt surfacing through an in-flight call is a pause,
			// not a failure; the session must stay resumable.
			if ctx.Err() != nil {
				return m.pause(ctx, runStart)
			}
			return m.fail(ctx, err)
		}
		if done {
			return m.finish(ctx, runStart, StopExplicitDone)
		}

		if m.session.CurrentStep%m.checkpointInterval == 0 {
			m.checkpoint(ctx)
		}
	}
}

// step executes one full state-machine pass. The returned bool reports an
// explicit `done` decision. Errors returned here are unrecoverable and flip
// the machine to ERROR.
func (m *Machine) step(ctx context.Context) (bool, error) {
	// -- OBSERVE --
	obs, err := m.browser.Observe(ctx)
	if err != nil {
		return false, fmt.Errorf("observation failed: %w", err)
	}
	m.trackPage(obs)

	// -- DECIDE --
	stepNum := m.session.NextStep()
	dc := schemas.DecisionContext{
		SessionID:    m.session.ID,
		Step:         stepNum,
		Goal:         m.session.Goal,
		Observation:  obs,
		History:      m.session.History,
		Tools:        m.tools.Definitions(),
		FindingCount: m.sink.Count(),
		Directive:    m.advanceDirective,
	}
	if m.suggester != nil {
		dc.Suggestions = m.suggester.Suggest(obs, m.session.History)
	}
	m.advanceDirective = nil

	candidate, err := m.gateway.RequestDecision(ctx, dc)
	if err != nil {
		return false, fmt.Errorf("decision request failed at step %d: %w", stepNum, err)
	}

	// -- VALIDATE --
	final, corrected := m.guard.Validate(ctx, dc, candidate, m.gateway, m.unvisitedHints())
	if corrected {
		m.logger.Debug("Decision corrected by loop guard",
			zap.Int("step", stepNum),
			zap.String("original", candidate.Summary()),
			zap.String("corrected", final.Summary()))
	}

	if final.Kind == schemas.ActionDone {
		m.logger.Info("Advisor concluded the exploration",
			zap.Int("step", stepNum), zap.String("reasoning", final.Reasoning))
		m.recordOutcome(ctx, stepNum, final, true, "", obs.URL, 0, nil)
		return true, nil
	}

	// -- EXECUTE --
	outcome := m.execute(ctx, final, obs)
	m.guard.Record(final, obs.URL)
	m.pageCtx.RecordAction(final.Summary(), outcome.err == nil, final.Selector)
	if final.Kind == schemas.ActionInvokeTool {
		m.pageCtx.RecordTool(final.ToolName)
	}
	if final.Kind == schemas.ActionFill || final.Kind == schemas.ActionSelect {
		// Form interaction counts toward the page's form coverage.
		m.pageCtx.FormsSubmitted++
	}

	// -- INTAKE_FINDINGS --
	acceptedIDs := m.intakeFindings(ctx, stepNum, final, obs, outcome.toolFindings)

	execErr := ""
	if outcome.err != nil {
		// Browser/tool failures are recorded, never fatal.
		execErr = outcome.err.Error()
		m.logger.Warn("Action execution failed",
			zap.Int("step", stepNum),
			zap.String("action", final.Summary()),
			zap.Error(outcome.err))
	}
	m.recordOutcome(ctx, stepNum, final, outcome.err == nil, execErr, outcome.resultURL, outcome.duration, acceptedIDs)

	// -- CHECK_EXIT --
	eval := m.evaluator.Evaluate(m.pageCtx, m.now())
	if eval.ShouldExit {
		m.logger.Info("Leaving current page",
			zap.String("url", m.pageCtx.URL),
			zap.String("reason", eval.Reason),
			zap.Float64("confidence", eval.Confidence))
		// ADVANCE_PAGE: fresh page context, clean action window, and a
		// navigation directive for the next decision.
		m.pageCtx = budget.NewPageContext(m.pageCtx.URL, m.pageCtx.Title, m.now())
		m.guard.ClearActionWindow()
		m.advanceDirective = &schemas.Directive{
			Avoid:           fmt.Sprintf("This page's exploration budget is exhausted (%s); move to a different page.", eval.Reason),
			NavigationHints: m.unvisitedHints(),
		}
	} else if len(eval.Pending) > 0 {
		m.logger.Debug("Continuing on page", zap.Strings("pending", eval.Pending))
	}

	return false, nil
}

// executionOutcome is the settled result of one EXECUTE phase.
type executionOutcome struct {
	err          error
	duration     time.Duration
	resultURL    string
	toolFindings []schemas.Finding
}

// execute dispatches the decision to the browser or the tool registry. It
// never returns a machine-fatal error; failures are captured in the outcome.
func (m *Machine) execute(ctx context.Context, d schemas.ActionDecision, obs schemas.PageObservation) executionOutcome {
	var out executionOutcome

	switch d.Kind {
	case schemas.ActionNavigate:
		out.duration, out.err = m.browser.Navigate(ctx, d.Value)
	case schemas.ActionClick:
		out.duration, out.err = m.browser.Click(ctx, d.Selector)
	case schemas.ActionFill:
		out.duration, out.err = m.browser.Fill(ctx, d.Selector, d.Value)
	case schemas.ActionSelect:
		out.duration, out.err = m.browser.Select(ctx, d.Selector, d.Value)
	case schemas.ActionHover:
		out.duration, out.err = m.browser.Hover(ctx, d.Selector)
	case schemas.ActionScroll:
		out.duration, out.err = m.browser.Scroll(ctx, d.Value)
	case schemas.ActionBack:
		out.duration, out.err = m.browser.GoBack(ctx)
	case schemas.ActionRefresh:
		out.duration, out.err = m.browser.Refresh(ctx)
	case schemas.ActionInvokeTool:
		result := m.tools.Invoke(ctx, d.ToolName, d.ToolParams, tools.ExecutionContext{
			Browser:     m.browser,
			Observation: obs,
			SessionID:   m.session.ID,
			Step:        m.session.CurrentStep,
		})
		out.duration = result.Duration
		out.toolFindings = result.Findings
		if !result.Success {
			out.err = fmt.Errorf("tool %s failed: %s", d.ToolName, result.Error)
		}
	default:
		out.err = fmt.Errorf("cannot execute action kind %q", d.Kind)
	}

	// Best-effort resulting URL; actions that navigate change it.
	if currentObs, obsErr := m.browser.Observe(ctx); obsErr == nil {
		out.resultURL = currentObs.URL
	} else {
		out.resultURL = obs.URL
	}
	return out
}

// intakeFindings routes tool findings and advisor-observed issues through
// the sink. Sink and enrichment failures are non-fatal. Returns the ids of
// the accepted (non-duplicate) findings.
func (m *Machine) intakeFindings(ctx context.Context, step int, d schemas.ActionDecision, obs schemas.PageObservation, toolFindings []schemas.Finding) []string {
	var all []schemas.Finding
	all = append(all, toolFindings...)
	for _, issue := range d.ObservedIssues {
		severity := schemas.Severity(strings.ToLower(issue.Severity))
		if !schemas.ValidSeverity(severity) {
			severity = schemas.SeverityMedium
		}
		all = append(all, schemas.Finding{
			ID:           newFindingID(),
			SessionID:    m.session.ID,
			Title:        issue.Title,
			Description:  issue.Description,
			Severity:     severity,
			PageURL:      obs.URL,
			Step:         step,
			Source:       "advisor",
			DiscoveredAt: m.now(),
		})
	}

	var accepted []string
	for _, f := range all {
		if f.Title == "" {
			continue
		}
		if _, dup := m.sinkDuplicate(f); dup {
			continue
		}
		// Enrichment is best-effort: a failed analysis never blocks intake.
		if analysis, err := m.gateway.AnalyzeFinding(ctx, f); err == nil {
			if analysis.FalsePositive {
				m.logger.Debug("Advisor judged finding a false positive, dropping",
					zap.String("title", f.Title))
				continue
			}
			f.Severity = analysis.Severity
			if analysis.Recommendation != "" {
				f.Recommendation = analysis.Recommendation
			}
		}
		if m.sink.Register(ctx, f) {
			accepted = append(accepted, f.ID)
			m.session.AddFinding(f.ID)
			m.pageCtx.BugsFound++
		}
	}
	return accepted
}

// sinkDuplicate adapts the sink's duplicate probe when available. The
// FindingSink interface keeps Register as the single mutation point; this
// pre-check just avoids paying for enrichment on obvious duplicates.
func (m *Machine) sinkDuplicate(f schemas.Finding) (string, bool) {
	type duplicator interface {
		IsDuplicate(title, pageURL string) (string, bool)
	}
	if d, ok := m.sink.(duplicator); ok {
		return d.IsDuplicate(f.Title, f.PageURL)
	}
	return "", false
}

// recordOutcome appends the step to session history, refreshes token totals
// and emits a progress event.
func (m *Machine) recordOutcome(ctx context.Context, step int, d schemas.ActionDecision, success bool, execErr, resultURL string, duration time.Duration, findingIDs []string) {
	m.session.AppendOutcome(schemas.StepOutcome{
		Step:       step,
		Decision:   d,
		Success:    success,
		Error:      execErr,
		ResultURL:  resultURL,
		Duration:   duration,
		FindingIDs: findingIDs,
		ExecutedAt: m.now(),
	})
	m.session.TokenUsage = m.gateway.Usage()
	m.emitProgress(step, resultURL)
}

func (m *Machine) emitProgress(step int, url string) {
	if m.progress == nil {
		return
	}
	recent := make([]string, 0, 3)
	history := m.session.History
	for i := len(history) - 1; i >= 0 && len(recent) < 3; i-- {
		recent = append(recent, history[i].Decision.Summary())
	}
	select {
	case m.progress <- ProgressEvent{
		Step:          step,
		URL:           url,
		FindingsCount: m.sink.Count(),
		RecentActions: recent,
	}:
	default:
		// A slow consumer never stalls the control loop.
	}
}

// trackPage resets the page context on URL changes and feeds the
// unvisited-location ranking from the page's outbound links.
func (m *Machine) trackPage(obs schemas.PageObservation) {
	if m.pageCtx == nil || m.pageCtx.URL != obs.URL {
		m.pageCtx = budget.NewPageContext(obs.URL, obs.Title, m.now())
		m.guard.ClearActionWindow()
	}
	m.visited[obs.URL] = true
	for _, el := range obs.Elements {
		if el.Href != "" {
			m.linkCounts[el.Href]++
		}
	}
}

// unvisitedHints ranks not-yet-visited locations by how often they are
// linked to, most linked first.
func (m *Machine) unvisitedHints() []string {
	type ranked struct {
		url   string
		count int
	}
	var candidates []ranked
	for url, count := range m.linkCounts {
		if !m.visited[url] {
			candidates = append(candidates, ranked{url, count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].url < candidates[j].url
	})
	hints := make([]string, 0, maxNavigationHints)
	for _, c := range candidates {
		if len(hints) == maxNavigationHints {
			break
		}
		hints = append(hints, c.url)
	}
	return hints
}

// finish closes out a gracefully terminated session.
func (m *Machine) finish(ctx context.Context, runStart time.Time, reason string) (*Result, error) {
	if err := m.session.Transition(StatusCompleted); err != nil {
		m.logger.Warn("Could not mark session completed", zap.Error(err))
	}

	// Closing summary is best-effort; the result is complete without it.
	if summary, err := m.gateway.Summarize(ctx, m.session.History, m.sink.All()); err == nil {
		m.session.Summary = summary
	} else {
		m.logger.Warn("Closing summary unavailable", zap.Error(err))
	}

	if err := m.sink.Flush(ctx); err != nil {
		m.logger.Error("Final findings flush failed", zap.Error(err))
	}
	m.checkpoint(ctx)
	return m.result(runStart, reason, nil), nil
}

// fail marks the session errored, checkpoints it with the current context
// preserved, and reports the terminal result. The step is never auto-retried.
func (m *Machine) fail(ctx context.Context, cause error) (*Result, error) {
	m.logger.Error("Exploration stopped on unrecoverable error", zap.Error(cause))
	m.session.LastError = cause.Error()
	if err := m.session.Transition(StatusError); err != nil {
		m.logger.Warn("Could not mark session errored", zap.Error(err))
	}
	if err := m.sink.Flush(ctx); err != nil {
		m.logger.Error("Final findings flush failed", zap.Error(err))
	}
	m.checkpoint(ctx)
	return m.result(time.Time{}, StopError, cause), nil
}

// pause checkpoints and suspends the session after a cancellation was seen
// between steps. The session can be resumed from the checkpoint.
func (m *Machine) pause(ctx context.Context, runStart time.Time) (*Result, error) {
	m.logger.Info("Cancellation received, pausing session between steps")
	if err := m.session.Transition(StatusPaused); err != nil {
		m.logger.Warn("Could not mark session paused", zap.Error(err))
	}
	// Checkpoint with a fresh context; the caller's is already cancelled.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.sink.Flush(saveCtx); err != nil {
		m.logger.Error("Findings flush on pause failed", zap.Error(err))
	}
	m.checkpoint(saveCtx)
	return m.result(runStart, StopPaused, nil), nil
}

func (m *Machine) result(runStart time.Time, reason string, cause error) *Result {
	var duration time.Duration
	if !runStart.IsZero() {
		duration = m.now().Sub(runStart)
	}
	r := &Result{
		SessionID:     m.session.ID,
		TargetURL:     m.session.TargetURL,
		TotalSteps:    m.session.CurrentStep,
		Duration:      duration,
		StoppedReason: reason,
		Findings:      m.sink.All(),
		History:       m.session.History,
		TokenUsage:    m.session.TokenUsage,
		Summary:       m.session.Summary,
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

func (m *Machine) checkpoint(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, m.session); err != nil {
		m.logger.Error("Session checkpoint failed", zap.Error(err))
	}
}
