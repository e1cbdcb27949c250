package schemas

import (
	"fmt"
	"time"
)

// ActionKind enumerates every action the advisor may choose. It is the
// structured vocabulary of the exploration loop; anything outside this set is
// rejected at the validation boundary.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"    // Go to a URL. Requires Value.
	ActionClick      ActionKind = "click"       // Click an element. Requires Selector.
	ActionFill       ActionKind = "fill"        // Type into a field. Requires Selector.
	ActionSelect     ActionKind = "select"      // Choose a dropdown option. Requires Selector.
	ActionHover      ActionKind = "hover"       // Hover over an element. Requires Selector.
	ActionScroll     ActionKind = "scroll"      // Scroll the page. Value is "up" or "down".
	ActionBack       ActionKind = "back"        // Browser history back.
	ActionRefresh    ActionKind = "refresh"     // Reload the current page.
	ActionInvokeTool ActionKind = "invoke-tool" // Run a registered analysis tool. Requires ToolName.
	ActionDone       ActionKind = "done"        // Conclude the exploration.
)

// selectorKinds are the action kinds that cannot execute without a target
// selector.
var selectorKinds = map[ActionKind]bool{
	ActionClick:  true,
	ActionFill:   true,
	ActionSelect: true,
	ActionHover:  true,
}

// ObservedIssue is a defect the advisor spotted directly in the page
// observation, reported alongside its decision. Issues flow into the finding
// sink during intake.
type ObservedIssue struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// ActionDecision is a single decision produced by an advisor backend. It is a
// tagged variant over ActionKind: kind-specific fields are only meaningful for
// the kinds documented on each field.
type ActionDecision struct {
	Kind     ActionKind `json:"action"`
	Selector string     `json:"selector,omitempty"` // click/fill/select/hover target.
	Value    string     `json:"value,omitempty"`    // URL, input text, option or scroll direction.

	ToolName   string         `json:"tool_name,omitempty"`   // invoke-tool only.
	ToolParams map[string]any `json:"tool_params,omitempty"` // invoke-tool only.

	// Advisor metadata.
	Reasoning      string          `json:"reasoning,omitempty"`
	Confidence     float64         `json:"confidence"`
	Hypothesis     string          `json:"hypothesis,omitempty"`
	ObservedIssues []ObservedIssue `json:"observed_issues,omitempty"`
}

// ClampConfidence forces the confidence into [0,1]. Advisors occasionally
// report values like 1.2 or -0.1; the invariant holds after parsing.
func (d *ActionDecision) ClampConfidence() {
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
}

// RequiresSelector reports whether the decision's kind needs a target
// selector to execute.
func (d *ActionDecision) RequiresSelector() bool {
	return selectorKinds[d.Kind]
}

// Validate checks the kind-specific field invariants. It does not consult
// page state; structural validity only.
func (d *ActionDecision) Validate() error {
	switch d.Kind {
	case ActionNavigate, ActionClick, ActionFill, ActionSelect, ActionHover,
		ActionScroll, ActionBack, ActionRefresh, ActionInvokeTool, ActionDone:
	default:
		return fmt.Errorf("unknown action kind %q", d.Kind)
	}

	if d.Kind == ActionInvokeTool && d.ToolName == "" {
		return fmt.Errorf("invoke-tool decision is missing a tool name")
	}
	if d.RequiresSelector() && d.Selector == "" {
		return fmt.Errorf("%s decision is missing a target selector", d.Kind)
	}
	return nil
}

// Summary renders a short human-readable description of the decision, used
// in progress events and history entries.
func (d *ActionDecision) Summary() string {
	switch d.Kind {
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", d.Value)
	case ActionInvokeTool:
		return fmt.Sprintf("run tool %s", d.ToolName)
	case ActionClick, ActionFill, ActionSelect, ActionHover:
		return fmt.Sprintf("%s %s", d.Kind, d.Selector)
	default:
		return string(d.Kind)
	}
}

// DefaultDecision is the safe fallback substituted when advisor output cannot
// be parsed. The loop treats it like any other decision; `done` with low
// confidence stops exploration without guessing at interactions.
func DefaultDecision(reason string) ActionDecision {
	return ActionDecision{
		Kind:       ActionDone,
		Confidence: 0.1,
		Reasoning:  reason,
	}
}

// StepOutcome records how an executed decision went. It is appended to the
// session history in strict step order.
type StepOutcome struct {
	Step       int            `json:"step"`
	Decision   ActionDecision `json:"decision"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	ResultURL  string         `json:"result_url,omitempty"`
	Duration   time.Duration  `json:"duration"`
	FindingIDs []string       `json:"finding_ids,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}
