// File: internal/explorer/machine_test.go
package explorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/budget"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/loopguard"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/tools"
)

// -- Fakes --

type fakeBrowser struct {
	currentURL string
	obs        schemas.PageObservation
	navErr     error
	actions    []string
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) (time.Duration, error) {
	b.actions = append(b.actions, "navigate "+url)
	if b.navErr != nil {
		return 0, b.navErr
	}
	b.currentURL = url
	return time.Millisecond, nil
}

func (b *fakeBrowser) Click(_ context.Context, selector string) (time.Duration, error) {
	b.actions = append(b.actions, "click "+selector)
	return time.Millisecond, nil
}

func (b *fakeBrowser) Fill(_ context.Context, selector, _ string) (time.Duration, error) {
	b.actions = append(b.actions, "fill "+selector)
	return time.Millisecond, nil
}

func (b *fakeBrowser) Select(_ context.Context, selector, _ string) (time.Duration, error) {
	b.actions = append(b.actions, "select "+selector)
	return time.Millisecond, nil
}

func (b *fakeBrowser) Hover(_ context.Context, selector string) (time.Duration, error) {
	b.actions = append(b.actions, "hover "+selector)
	return time.Millisecond, nil
}

func (b *fakeBrowser) Scroll(_ context.Context, direction string) (time.Duration, error) {
	b.actions = append(b.actions, "scroll "+direction)
	return time.Millisecond, nil
}

func (b *fakeBrowser) GoBack(_ context.Context) (time.Duration, error) {
	b.actions = append(b.actions, "back")
	return time.Millisecond, nil
}

func (b *fakeBrowser) Refresh(_ context.Context) (time.Duration, error) {
	b.actions = append(b.actions, "refresh")
	return time.Millisecond, nil
}

func (b *fakeBrowser) Observe(_ context.Context) (schemas.PageObservation, error) {
	obs := b.obs
	obs.URL = b.currentURL
	return obs, nil
}

func (b *fakeBrowser) Evaluate(_ context.Context, _ string, _ any) error { return nil }

// fakeAdvisor pops scripted decisions; once the script runs out it keeps
// returning the last one.
type fakeAdvisor struct {
	decisions    []schemas.ActionDecision
	decisionErrs []error
	calls        int
	analysis     schemas.FindingAnalysis
	analysisErr  error
	summary      string
	usage        schemas.TokenUsage
}

func (a *fakeAdvisor) RequestDecision(_ context.Context, _ schemas.DecisionContext) (schemas.ActionDecision, error) {
	idx := a.calls
	a.calls++
	if idx < len(a.decisionErrs) && a.decisionErrs[idx] != nil {
		return schemas.ActionDecision{}, a.decisionErrs[idx]
	}
	if idx >= len(a.decisions) {
		idx = len(a.decisions) - 1
	}
	if idx < 0 {
		return schemas.DefaultDecision("script exhausted"), nil
	}
	return a.decisions[idx], nil
}

func (a *fakeAdvisor) AnalyzeFinding(_ context.Context, f schemas.Finding) (schemas.FindingAnalysis, error) {
	if a.analysisErr != nil {
		return schemas.FindingAnalysis{}, a.analysisErr
	}
	if a.analysis.Severity == "" {
		return schemas.FindingAnalysis{Severity: f.Severity}, nil
	}
	return a.analysis, nil
}

func (a *fakeAdvisor) Summarize(_ context.Context, _ []schemas.StepOutcome, _ []schemas.Finding) (string, error) {
	if a.summary == "" {
		return "", errors.New("no summary scripted")
	}
	return a.summary, nil
}

func (a *fakeAdvisor) Usage() schemas.TokenUsage { return a.usage }

type fakeToolRunner struct {
	findings []schemas.Finding
	invoked  []string
}

func (r *fakeToolRunner) Definitions() []schemas.ToolDefinition {
	return []schemas.ToolDefinition{{Name: "check_console_errors", Description: "scan console"}}
}

func (r *fakeToolRunner) Invoke(_ context.Context, name string, _ map[string]any, _ tools.ExecutionContext) schemas.ToolResult {
	r.invoked = append(r.invoked, name)
	return schemas.ToolResult{ToolName: name, Success: true, Findings: r.findings, Duration: time.Millisecond}
}

// fakeSink mirrors the collector's title|url dedup without persistence.
type fakeSink struct {
	accepted []schemas.Finding
	index    map[string]string
	flushes  int
	flushErr error
}

func newFakeSink() *fakeSink { return &fakeSink{index: map[string]string{}} }

func (s *fakeSink) key(title, url string) string {
	return strings.ToLower(title) + "|" + strings.ToLower(url)
}

func (s *fakeSink) IsDuplicate(title, pageURL string) (string, bool) {
	id, ok := s.index[s.key(title, pageURL)]
	return id, ok
}

func (s *fakeSink) Register(_ context.Context, f schemas.Finding) bool {
	k := s.key(f.Title, f.PageURL)
	if _, dup := s.index[k]; dup {
		return false
	}
	s.index[k] = f.ID
	s.accepted = append(s.accepted, f)
	return true
}

func (s *fakeSink) All() []schemas.Finding { return s.accepted }
func (s *fakeSink) Count() int             { return len(s.accepted) }

func (s *fakeSink) Flush(_ context.Context) error {
	s.flushes++
	return s.flushErr
}

type fakeStore struct {
	saves    int
	lastSave *Session
	saveErr  error
}

func (st *fakeStore) Save(_ context.Context, s *Session) error {
	st.saves++
	copied := *s
	st.lastSave = &copied
	return st.saveErr
}

func (st *fakeStore) Load(_ context.Context, _ string) (*Session, error) {
	return nil, errors.New("not implemented")
}

// -- Setup --

type machineFixture struct {
	machine *Machine
	session *Session
	browser *fakeBrowser
	advisor *fakeAdvisor
	runner  *fakeToolRunner
	sink    *fakeSink
	store   *fakeStore
	logs    *observer.ObservedLogs
}

func setupMachine(t *testing.T, maxSteps int, advisor *fakeAdvisor) *machineFixture {
	t.Helper()
	loggerCore, observedLogs := observer.New(zap.DebugLevel)

	session := NewSession("https://example.com", "find bugs", maxSteps, 0)
	browser := &fakeBrowser{obs: schemas.PageObservation{Title: "Example"}}
	runner := &fakeToolRunner{}
	sink := newFakeSink()
	st := &fakeStore{}

	guard := loopguard.New(config.LoopGuardConfig{
		ToolWindowSize:      10,
		ActionWindowSize:    10,
		ToolLoopThreshold:   3,
		ActionLoopThreshold: 3,
	}, zap.NewNop())
	evaluator := budget.New(config.PageBudgetConfig{
		MaxActionsPerPage:      50,
		MinElementInteractions: 1,
	})

	m := NewMachine(zap.New(loggerCore), session, advisor, guard, evaluator, browser, runner, sink, Options{
		Store:              st,
		CheckpointInterval: 2,
	})
	return &machineFixture{
		machine: m,
		session: session,
		browser: browser,
		advisor: advisor,
		runner:  runner,
		sink:    sink,
		store:   st,
		logs:    observedLogs,
	}
}

// -- Terminal conditions --

func TestRun_StopsAtStepCeiling(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionRefresh, Confidence: 0.8},
	}}
	fx := setupMachine(t, 3, advisor)

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMaxStepsReached, result.StoppedReason)
	assert.Equal(t, 3, result.TotalSteps)
	assert.Len(t, result.History, 3, "every executed step lands in history")
	assert.Equal(t, StatusCompleted, fx.session.Status)
}

func TestRun_ExplicitDone(t *testing.T) {
	advisor := &fakeAdvisor{
		decisions: []schemas.ActionDecision{
			{Kind: schemas.ActionRefresh, Confidence: 0.8},
			{Kind: schemas.ActionDone, Confidence: 0.9, Reasoning: "coverage satisfied"},
		},
		summary: "explored the page",
	}
	fx := setupMachine(t, 100, advisor)

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExplicitDone, result.StoppedReason)
	assert.Equal(t, 2, result.TotalSteps)
	assert.Equal(t, "explored the page", result.Summary)

	// The done decision itself is part of history.
	last := result.History[len(result.History)-1]
	assert.Equal(t, schemas.ActionDone, last.Decision.Kind)
	assert.True(t, last.Success)
}

func TestRun_DurationCeiling(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionRefresh, Confidence: 0.8},
	}}
	fx := setupMachine(t, 1000, advisor)
	fx.session.MaxDuration = time.Hour

	// Every clock read advances ten minutes, so the ceiling trips after a
	// handful of steps, long before the step ceiling.
	base := time.Now()
	reads := 0
	fx.machine.now = func() time.Time {
		reads++
		return base.Add(time.Duration(reads) * 10 * time.Minute)
	}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopCompleted, result.StoppedReason)
	assert.Less(t, result.TotalSteps, 1000)
	assert.Equal(t, StatusCompleted, fx.session.Status)
}

func TestRun_GatewayFailureIsFatal(t *testing.T) {
	advisor := &fakeAdvisor{decisionErrs: []error{errors.New("no advisor backend available")}}
	fx := setupMachine(t, 10, advisor)

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err, "the machine reports failures in the result, not as a Run error")
	assert.Equal(t, StopError, result.StoppedReason)
	assert.Contains(t, result.Error, "decision request failed")
	assert.Equal(t, StatusError, fx.session.Status)
	assert.NotEmpty(t, fx.session.LastError)

	// The errored session was checkpointed for post-mortem inspection.
	require.NotNil(t, fx.store.lastSave)
	assert.Equal(t, StatusError, fx.store.lastSave.Status)
}

func TestRun_InitialNavigationFailure(t *testing.T) {
	advisor := &fakeAdvisor{}
	fx := setupMachine(t, 10, advisor)
	fx.browser.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopError, result.StoppedReason)
	assert.Contains(t, result.Error, "initial navigation")
	assert.Equal(t, 0, advisor.calls, "no decisions are requested when the target is unreachable")
}

func TestRun_CancellationPausesBetweenSteps(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionRefresh, Confidence: 0.8},
	}}
	fx := setupMachine(t, 1000, advisor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fx.machine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopPaused, result.StoppedReason)
	assert.Equal(t, StatusPaused, fx.session.Status)
	assert.GreaterOrEqual(t, fx.sink.flushes, 1, "findings are flushed on pause")
	require.NotNil(t, fx.store.lastSave)
	assert.Equal(t, StatusPaused, fx.store.lastSave.Status)
}

// cancellingAdvisor cancels the run context from inside the decision call
// and surfaces the cancellation, the shape an interrupt takes when it lands
// mid-request.
type cancellingAdvisor struct {
	fakeAdvisor
	cancel context.CancelFunc
}

func (a *cancellingAdvisor) RequestDecision(ctx context.Context, _ schemas.DecisionContext) (schemas.ActionDecision, error) {
	a.cancel()
	return schemas.ActionDecision{}, fmt.Errorf("decision aborted: %w", ctx.Err())
}

func TestRun_CancellationDuringAdvisorCallPauses(t *testing.T) {
	fx := setupMachine(t, 1000, &fakeAdvisor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.machine.gateway = &cancellingAdvisor{cancel: cancel}

	result, err := fx.machine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopPaused, result.StoppedReason)
	assert.Empty(t, result.Error)
	assert.Equal(t, StatusPaused, fx.session.Status)
	require.NotNil(t, fx.store.lastSave)
	assert.Equal(t, StatusPaused, fx.store.lastSave.Status, "the checkpoint must be resumable")
}

func TestRun_CancellationDuringInitialNavigationPauses(t *testing.T) {
	advisor := &fakeAdvisor{}
	fx := setupMachine(t, 1000, advisor)
	ctx, cancel := context.WithCancel(context.Background())
	fx.browser.navErr = context.Canceled
	cancel()

	result, err := fx.machine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopPaused, result.StoppedReason)
	assert.Equal(t, StatusPaused, fx.session.Status)
	assert.Equal(t, 0, advisor.calls)
}

// -- Step internals --

func TestStep_BrowserFailureIsNonFatal(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionNavigate, Value: "https://example.com/broken", Confidence: 0.8},
		{Kind: schemas.ActionDone, Confidence: 0.9},
	}}
	fx := setupMachine(t, 10, advisor)

	// Fail every navigation after the initial one.
	fx.machine.browser = &failingNavBrowser{fakeBrowser: fx.browser, failAfter: 1}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExplicitDone, result.StoppedReason)

	first := result.History[0]
	assert.False(t, first.Success)
	assert.Contains(t, first.Error, "nav failed")
	assert.Equal(t, StatusCompleted, fx.session.Status, "a failed action does not error the session")
}

// failingNavBrowser fails navigations after the first n calls.
type failingNavBrowser struct {
	*fakeBrowser
	failAfter int
	navCalls  int
}

func (b *failingNavBrowser) Navigate(ctx context.Context, url string) (time.Duration, error) {
	b.navCalls++
	if b.navCalls > b.failAfter {
		return 0, errors.New("nav failed")
	}
	return b.fakeBrowser.Navigate(ctx, url)
}

func TestStep_ToolFindingsFlowIntoSink(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionInvokeTool, ToolName: "check_console_errors", Confidence: 0.8},
		{Kind: schemas.ActionDone, Confidence: 0.9},
	}}
	fx := setupMachine(t, 10, advisor)
	fx.runner.findings = []schemas.Finding{{
		ID:       "f-1",
		Title:    "Console error on load",
		Severity: schemas.SeverityMedium,
		PageURL:  "https://example.com",
	}}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"check_console_errors"}, fx.runner.invoked)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Console error on load", result.Findings[0].Title)
	assert.Equal(t, []string{"f-1"}, result.History[0].FindingIDs)
	assert.Equal(t, []string{"f-1"}, fx.session.FindingIDs)
}

func TestStep_AdvisorObservedIssuesBecomeFindings(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{
			Kind:       schemas.ActionRefresh,
			Confidence: 0.8,
			ObservedIssues: []schemas.ObservedIssue{
				{Title: "Overlapping layout on header", Severity: "low"},
				{Title: "", Description: "untitled issues are dropped"},
			},
		},
		{Kind: schemas.ActionDone, Confidence: 0.9},
	}}
	fx := setupMachine(t, 10, advisor)

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Overlapping layout on header", result.Findings[0].Title)
	assert.Equal(t, "advisor", result.Findings[0].Source)
	assert.Equal(t, schemas.SeverityLow, result.Findings[0].Severity)
}

func TestStep_FalsePositivesAreDropped(t *testing.T) {
	advisor := &fakeAdvisor{
		decisions: []schemas.ActionDecision{
			{Kind: schemas.ActionInvokeTool, ToolName: "check_console_errors", Confidence: 0.8},
			{Kind: schemas.ActionDone, Confidence: 0.9},
		},
		analysis: schemas.FindingAnalysis{Severity: schemas.SeverityLow, FalsePositive: true},
	}
	fx := setupMachine(t, 10, advisor)
	fx.runner.findings = []schemas.Finding{{
		ID:      "f-1",
		Title:   "Favicon 404",
		PageURL: "https://example.com",
	}}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Empty(t, fx.session.FindingIDs)
}

func TestStep_EnrichmentUpgradesSeverity(t *testing.T) {
	advisor := &fakeAdvisor{
		decisions: []schemas.ActionDecision{
			{Kind: schemas.ActionInvokeTool, ToolName: "check_console_errors", Confidence: 0.8},
			{Kind: schemas.ActionDone, Confidence: 0.9},
		},
		analysis: schemas.FindingAnalysis{Severity: schemas.SeverityHigh, Recommendation: "escape user input"},
	}
	fx := setupMachine(t, 10, advisor)
	fx.runner.findings = []schemas.Finding{{
		ID:       "f-1",
		Title:    "Unescaped output",
		Severity: schemas.SeverityLow,
		PageURL:  "https://example.com",
	}}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, schemas.SeverityHigh, result.Findings[0].Severity)
	assert.Equal(t, "escape user input", result.Findings[0].Recommendation)
}

func TestStep_DuplicateFindingsNotEnrichedTwice(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionInvokeTool, ToolName: "check_console_errors", Confidence: 0.8},
		{Kind: schemas.ActionInvokeTool, ToolName: "check_console_errors", Confidence: 0.8},
		{Kind: schemas.ActionDone, Confidence: 0.9},
	}}
	fx := setupMachine(t, 10, advisor)
	fx.runner.findings = []schemas.Finding{{
		ID:      "f-1",
		Title:   "Console error on load",
		PageURL: "https://example.com",
	}}

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Findings, 1, "the repeated finding deduplicates on title|url")
}

func TestRun_PeriodicCheckpointing(t *testing.T) {
	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionRefresh, Confidence: 0.8},
	}}
	fx := setupMachine(t, 4, advisor) // checkpoint interval 2

	_, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	// Steps 2 and 4 checkpoint, plus the terminal checkpoint in finish.
	assert.Equal(t, 3, fx.store.saves)
}

func TestRun_TokenUsageLandsInResult(t *testing.T) {
	advisor := &fakeAdvisor{
		decisions: []schemas.ActionDecision{{Kind: schemas.ActionDone, Confidence: 0.9}},
		usage:     schemas.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	}
	fx := setupMachine(t, 10, advisor)

	result, err := fx.machine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 140, result.TokenUsage.TotalTokens)
}

func TestRun_ProgressEventsAreNonBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	advisor := &fakeAdvisor{decisions: []schemas.ActionDecision{
		{Kind: schemas.ActionRefresh, Confidence: 0.8},
	}}
	fx := setupMachine(t, 5, advisor)

	// An unbuffered channel with no consumer: the machine must not block.
	progress := make(chan ProgressEvent)
	fx.machine.progress = progress

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = fx.machine.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("machine blocked on a progress event with no consumer")
	}
}

// -- Session model --

func TestSession_TransitionRules(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"idle to running", StatusIdle, StatusRunning, true},
		{"running to paused", StatusRunning, StatusPaused, true},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to error", StatusRunning, StatusError, true},
		{"paused to running", StatusPaused, StatusRunning, true},
		{"idle to completed", StatusIdle, StatusCompleted, false},
		{"completed is terminal", StatusCompleted, StatusRunning, false},
		{"error is terminal", StatusError, StatusRunning, false},
		{"paused to completed", StatusPaused, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("https://example.com", "goal", 10, 0)
			s.Status = tt.from
			err := s.Transition(tt.to)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, s.Status)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.from, s.Status, "a rejected transition must not change status")
			}
		})
	}
}

func TestSession_NextStepIsMonotonic(t *testing.T) {
	s := NewSession("https://example.com", "goal", 10, 0)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, s.NextStep())
	}
	assert.Equal(t, 5, s.CurrentStep)
}

func TestUnvisitedHints_RankedByLinkCount(t *testing.T) {
	fx := setupMachine(t, 10, &fakeAdvisor{})
	m := fx.machine

	m.visited["https://example.com/home"] = true
	m.linkCounts["https://example.com/home"] = 9 // visited: excluded
	m.linkCounts["https://example.com/a"] = 3
	m.linkCounts["https://example.com/b"] = 5
	m.linkCounts["https://example.com/c"] = 3
	for i := 0; i < 10; i++ {
		m.linkCounts[fmt.Sprintf("https://example.com/filler-%d", i)] = 1
	}

	hints := m.unvisitedHints()
	assert.Len(t, hints, 5, "hints are capped")
	assert.Equal(t, "https://example.com/b", hints[0])
	// Equal counts tie-break alphabetically.
	assert.Equal(t, "https://example.com/a", hints[1])
	assert.Equal(t, "https://example.com/c", hints[2])
	assert.NotContains(t, hints, "https://example.com/home")
}
