package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// noParamsSchema rejects any parameter; the built-in tools operate purely on
// the current page.
var noParamsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
}

// newFinding stamps the shared finding fields for a tool discovery.
func newFinding(ec ExecutionContext, source, title, description, evidence string, severity schemas.Severity) schemas.Finding {
	return schemas.Finding{
		ID:           uuid.NewString(),
		SessionID:    ec.SessionID,
		Title:        title,
		Description:  description,
		Severity:     severity,
		PageURL:      ec.Observation.URL,
		Step:         ec.Step,
		Source:       source,
		Evidence:     evidence,
		DiscoveredAt: time.Now(),
	}
}

// -- find_broken_images --

type brokenImagesTool struct{}

const brokenImagesJS = `(() =>
	Array.from(document.images)
		.filter(img => img.complete && img.naturalWidth === 0 && img.src)
		.map(img => img.src)
)()`

func (t *brokenImagesTool) Definition() schemas.ToolDefinition {
	return schemas.ToolDefinition{
		Name:        "find_broken_images",
		Description: "Scan the current page for <img> elements that failed to load.",
		ParamSchema: noParamsSchema,
	}
}

func (t *brokenImagesTool) Run(ctx context.Context, ec ExecutionContext, _ map[string]any) ([]schemas.Finding, string, error) {
	var srcs []string
	if err := ec.Browser.Evaluate(ctx, brokenImagesJS, &srcs); err != nil {
		return nil, "", fmt.Errorf("broken image scan failed: %w", err)
	}
	var findings []schemas.Finding
	for _, src := range srcs {
		findings = append(findings, newFinding(ec, "find_broken_images",
			fmt.Sprintf("Broken image: %s", src),
			"The image element completed loading with zero natural width, indicating a missing or unrenderable resource.",
			src, schemas.SeverityLow))
	}
	return findings, fmt.Sprintf("%d broken image(s)", len(srcs)), nil
}

// -- check_console_errors --

type consoleErrorsTool struct{}

func (t *consoleErrorsTool) Definition() schemas.ToolDefinition {
	return schemas.ToolDefinition{
		Name:        "check_console_errors",
		Description: "Report JavaScript console errors and uncaught exceptions captured on this page.",
		ParamSchema: noParamsSchema,
	}
}

func (t *consoleErrorsTool) Run(_ context.Context, ec ExecutionContext, _ map[string]any) ([]schemas.Finding, string, error) {
	var findings []schemas.Finding
	for _, ce := range ec.Observation.ConsoleErrors {
		findings = append(findings, newFinding(ec, "check_console_errors",
			fmt.Sprintf("Console error: %s", firstLine(ce.Message, 120)),
			"A console error was emitted while the page was active.",
			ce.Message, schemas.SeverityMedium))
	}
	for _, ne := range ec.Observation.NetworkErrors {
		title := fmt.Sprintf("Failed request: %s", ne.URL)
		if ne.StatusCode > 0 {
			title = fmt.Sprintf("HTTP %d: %s", ne.StatusCode, ne.URL)
		}
		findings = append(findings, newFinding(ec, "check_console_errors",
			title, "A network request failed or returned an error status.",
			ne.Failure, schemas.SeverityMedium))
	}
	return findings, fmt.Sprintf("%d console/network error(s)", len(findings)), nil
}

// -- check_forms --

type formsTool struct{}

const formsJS = `(() =>
	Array.from(document.forms).map((form, i) => ({
		index: i,
		action: form.action || "",
		inputs: form.querySelectorAll("input, select, textarea").length,
		unlabeled: Array.from(form.querySelectorAll("input:not([type=hidden]):not([type=submit])"))
			.filter(el => !el.labels || el.labels.length === 0)
			.filter(el => !el.getAttribute("aria-label") && !el.placeholder).length,
		hasSubmit: !!form.querySelector("[type=submit], button:not([type=button])"),
	}))
)()`

type formInfo struct {
	Index     int    `json:"index"`
	Action    string `json:"action"`
	Inputs    int    `json:"inputs"`
	Unlabeled int    `json:"unlabeled"`
	HasSubmit bool   `json:"hasSubmit"`
}

func (t *formsTool) Definition() schemas.ToolDefinition {
	return schemas.ToolDefinition{
		Name:        "check_forms",
		Description: "Inspect forms on the page for missing submit buttons and unlabeled inputs.",
		ParamSchema: noParamsSchema,
	}
}

func (t *formsTool) Run(ctx context.Context, ec ExecutionContext, _ map[string]any) ([]schemas.Finding, string, error) {
	var forms []formInfo
	if err := ec.Browser.Evaluate(ctx, formsJS, &forms); err != nil {
		return nil, "", fmt.Errorf("form inspection failed: %w", err)
	}
	var findings []schemas.Finding
	for _, f := range forms {
		if f.Inputs > 0 && !f.HasSubmit {
			findings = append(findings, newFinding(ec, "check_forms",
				fmt.Sprintf("Form #%d has no submit control", f.Index),
				"A form with inputs offers no submit button, so keyboard-only users may be unable to submit it.",
				f.Action, schemas.SeverityMedium))
		}
		if f.Unlabeled > 0 {
			findings = append(findings, newFinding(ec, "check_forms",
				fmt.Sprintf("Form #%d has %d unlabeled input(s)", f.Index, f.Unlabeled),
				"Inputs without labels, aria-labels or placeholders are inaccessible to screen readers.",
				f.Action, schemas.SeverityLow))
		}
	}
	return findings, fmt.Sprintf("%d form(s) inspected", len(forms)), nil
}

// -- check_links --

type linksTool struct{}

const linksJS = `(() =>
	Array.from(document.querySelectorAll("a")).map(a => ({
		href: a.getAttribute("href") || "",
		text: (a.innerText || "").trim().slice(0, 60),
	}))
)()`

type linkInfo struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

func (t *linksTool) Definition() schemas.ToolDefinition {
	return schemas.ToolDefinition{
		Name:        "check_links",
		Description: "Find anchors with empty, placeholder or javascript: targets.",
		ParamSchema: noParamsSchema,
	}
}

func (t *linksTool) Run(ctx context.Context, ec ExecutionContext, _ map[string]any) ([]schemas.Finding, string, error) {
	var links []linkInfo
	if err := ec.Browser.Evaluate(ctx, linksJS, &links); err != nil {
		return nil, "", fmt.Errorf("link scan failed: %w", err)
	}
	var findings []schemas.Finding
	dead := 0
	for _, l := range links {
		switch l.Href {
		case "", "#", "javascript:void(0)", "javascript:;":
			dead++
			label := l.Text
			if label == "" {
				label = "(no text)"
			}
			findings = append(findings, newFinding(ec, "check_links",
				fmt.Sprintf("Dead link: %s", label),
				fmt.Sprintf("Anchor %q points at %q, which navigates nowhere.", label, l.Href),
				l.Href, schemas.SeverityLow))
		}
	}
	return findings, fmt.Sprintf("%d link(s) scanned, %d dead", len(links), dead), nil
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}
