package schemas

import "time"

// PageElement is one interactive element surfaced to the advisor. Selectors
// are CSS; the advisor must target decisions at these.
type PageElement struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Type     string `json:"type,omitempty"` // input type, when Tag is "input".
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	Href     string `json:"href,omitempty"`
	Visible  bool   `json:"visible"`
}

// ConsoleError is a console message of error severity captured on the page.
type ConsoleError struct {
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkError is a failed or error-status network request observed on the
// page.
type NetworkError struct {
	URL        string    `json:"url"`
	Method     string    `json:"method,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PageObservation is a snapshot of the browser state fed to the advisor at
// the start of each step.
type PageObservation struct {
	URL           string         `json:"url"`
	Title         string         `json:"title"`
	VisibleText   string         `json:"visible_text,omitempty"`
	Elements      []PageElement  `json:"elements,omitempty"`
	ConsoleErrors []ConsoleError `json:"console_errors,omitempty"`
	NetworkErrors []NetworkError `json:"network_errors,omitempty"`
	CapturedAt    time.Time      `json:"captured_at"`
}
