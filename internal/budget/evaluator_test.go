// File: internal/budget/evaluator_test.go
package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

func testBudgetConfig() config.PageBudgetConfig {
	return config.PageBudgetConfig{
		MaxTimePerPage:         5 * time.Minute,
		MaxActionsPerPage:      8,
		ExitAfterBugsFound:     3,
		MinElementInteractions: 4,
		RequiredTools:          []string{"check_console_errors", "find_broken_images"},
	}
}

func pageWith(actions int, bugs int, entered time.Time) *PageContext {
	pc := NewPageContext("https://example.com/a", "Page A", entered)
	for i := 0; i < actions; i++ {
		pc.RecordAction("click #x", true, "")
	}
	pc.BugsFound = bugs
	return pc
}

// The rules short-circuit in a fixed order; earlier rules mask later ones
// even when several hold at once.
func TestEvaluate_RuleOrder(t *testing.T) {
	entered := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	cfg := testBudgetConfig()
	e := New(cfg)

	tests := []struct {
		name       string
		pc         *PageContext
		now        time.Time
		wantExit   bool
		wantReason string
		wantConf   float64
	}{
		{
			name:       "time limit wins over everything",
			pc:         pageWith(20, 10, entered),
			now:        entered.Add(6 * time.Minute),
			wantExit:   true,
			wantReason: ReasonTimeLimit,
			wantConf:   1.0,
		},
		{
			name:       "max actions before sufficient findings",
			pc:         pageWith(8, 10, entered),
			now:        entered.Add(time.Minute),
			wantExit:   true,
			wantReason: ReasonMaxActions,
			wantConf:   1.0,
		},
		{
			name:       "sufficient findings at the third bug",
			pc:         pageWith(4, 3, entered),
			now:        entered.Add(time.Minute),
			wantExit:   true,
			wantReason: ReasonSufficientFindings,
			wantConf:   0.9,
		},
		{
			name:       "two bugs are not sufficient",
			pc:         pageWith(4, 2, entered),
			now:        entered.Add(time.Minute),
			wantExit:   false,
			wantReason: ReasonIncomplete,
			wantConf:   0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(tt.pc, tt.now)
			assert.Equal(t, tt.wantExit, got.ShouldExit)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestEvaluate_PageCompleteWhenCoverageSatisfied(t *testing.T) {
	entered := time.Now()
	e := New(testBudgetConfig())

	pc := NewPageContext("https://example.com/a", "Page A", entered)
	pc.RecordTool("check_console_errors")
	pc.RecordTool("find_broken_images")
	for _, sel := range []string{"#a", "#b", "#c", "#d"} {
		pc.RecordAction("click", true, sel)
	}

	got := e.Evaluate(pc, entered.Add(time.Minute))
	assert.True(t, got.ShouldExit)
	assert.Equal(t, ReasonPageComplete, got.Reason)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.Empty(t, got.Pending)
}

func TestEvaluate_PendingListsShortfalls(t *testing.T) {
	entered := time.Now()
	e := New(testBudgetConfig())

	pc := NewPageContext("https://example.com/a", "Page A", entered)
	pc.RecordTool("check_console_errors")
	pc.RecordAction("click", true, "#a")
	pc.RecordAction("click", true, "#a") // same element: still one interaction

	got := e.Evaluate(pc, entered.Add(time.Minute))
	assert.False(t, got.ShouldExit)
	assert.Contains(t, got.Pending, "tool find_broken_images not run")
	assert.Contains(t, got.Pending, "element interactions 1/4")
	assert.NotContains(t, got.Pending, "tool check_console_errors not run")
}

// Identical inputs must always produce identical evaluations.
func TestEvaluate_Deterministic(t *testing.T) {
	entered := time.Now()
	now := entered.Add(time.Minute)
	e := New(testBudgetConfig())
	pc := pageWith(5, 1, entered)

	first := e.Evaluate(pc, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(pc, now))
	}
}

func TestEvaluate_DisabledThresholds(t *testing.T) {
	entered := time.Now()
	cfg := testBudgetConfig()
	cfg.MaxTimePerPage = 0    // disabled
	cfg.ExitAfterBugsFound = 0 // disabled
	e := New(cfg)

	// Hours on the page with bugs piling up: neither disabled rule fires.
	pc := pageWith(1, 50, entered)
	got := e.Evaluate(pc, entered.Add(10*time.Hour))
	assert.Equal(t, ReasonIncomplete, got.Reason)
}
