package schemas

import "time"

// Severity grades a finding. Analyzed findings carry whichever grade the
// advisor assigned; tool findings start at their tool's default.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ValidSeverity reports whether s is one of the known grades.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Finding is a single defect discovered during exploration. Findings are
// deduplicated by (Title, PageURL) before they reach a sink.
type Finding struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Severity       Severity  `json:"severity"`
	PageURL        string    `json:"page_url"`
	Step           int       `json:"step"`
	Source         string    `json:"source"` // tool name, "advisor" or "browser".
	Evidence       string    `json:"evidence,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// FindingAnalysis is the advisor's enrichment of a raw finding, produced by
// the gateway's AnalyzeFinding operation.
type FindingAnalysis struct {
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation,omitempty"`
	FalsePositive  bool     `json:"false_positive"`
	Reasoning      string   `json:"reasoning,omitempty"`
}
