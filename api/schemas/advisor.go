package schemas

// TokenUsage counts advisor tokens for one call. The gateway accumulates the
// per-call counts into session totals.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// SuggestedAction is one ranked candidate produced by a persona suggester.
// Suggestions inform the advisor prompt; the advisor is free to ignore them.
type SuggestedAction struct {
	Kind      ActionKind `json:"kind"`
	Selector  string     `json:"selector,omitempty"`
	Value     string     `json:"value,omitempty"`
	Rationale string     `json:"rationale,omitempty"`
	Rank      int        `json:"rank"`
}

// Directive carries the loop guard's corrective constraints for a re-query.
// A nil Directive means an unconstrained request.
type Directive struct {
	// Avoid describes the repetition the advisor must break out of.
	Avoid string `json:"avoid,omitempty"`
	// OmitTools removes tool options from the prompt entirely.
	OmitTools bool `json:"omit_tools,omitempty"`
	// NavigationHints are unvisited locations ranked by link count.
	NavigationHints []string `json:"navigation_hints,omitempty"`
}

// DecisionContext is everything an advisor backend needs to choose the next
// action for a step.
type DecisionContext struct {
	SessionID    string            `json:"session_id"`
	Step         int               `json:"step"`
	Goal         string            `json:"goal"`
	Observation  PageObservation   `json:"observation"`
	History      []StepOutcome     `json:"history,omitempty"`
	Tools        []ToolDefinition  `json:"tools,omitempty"`
	Suggestions  []SuggestedAction `json:"suggestions,omitempty"`
	FindingCount int               `json:"finding_count"`
	Directive    *Directive        `json:"directive,omitempty"`
}
