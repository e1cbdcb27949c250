package budget

import "time"

// RecordedAction is one action taken on the current page.
type RecordedAction struct {
	Summary string
	Success bool
}

// PageContext is the working state of one page visit. It is created on page
// entry, mutated by the step state machine, and discarded on page exit —
// never persisted.
type PageContext struct {
	URL   string
	Title string

	Actions          []RecordedAction
	ElementsTouched  map[string]bool
	ToolsRun         map[string]bool
	FormsSubmitted   int
	BugsFound        int
	EnteredAt        time.Time
}

// NewPageContext starts tracking a fresh page visit.
func NewPageContext(url, title string, now time.Time) *PageContext {
	return &PageContext{
		URL:             url,
		Title:           title,
		ElementsTouched: map[string]bool{},
		ToolsRun:        map[string]bool{},
		EnteredAt:       now,
	}
}

// RecordAction appends an executed action and tracks the distinct element it
// touched, if any.
func (pc *PageContext) RecordAction(summary string, success bool, selector string) {
	pc.Actions = append(pc.Actions, RecordedAction{Summary: summary, Success: success})
	if selector != "" {
		pc.ElementsTouched[selector] = true
	}
}

// RecordTool marks a tool as run on this page.
func (pc *PageContext) RecordTool(toolName string) {
	pc.ToolsRun[toolName] = true
}
