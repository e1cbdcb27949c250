package schemas

import "time"

// ToolDefinition describes a registered page-analysis tool as presented to
// the advisor. ParamSchema is a JSON Schema document used to validate
// invoke-tool parameters before execution.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ParamSchema map[string]any `json:"param_schema,omitempty"`
}

// ToolResult is the outcome of running one tool on the current page.
type ToolResult struct {
	ToolName   string        `json:"tool_name"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Findings   []Finding     `json:"findings,omitempty"`
	RawOutput  string        `json:"raw_output,omitempty"`
	Duration   time.Duration `json:"duration"`
	ExecutedAt time.Time     `json:"executed_at"`
}
