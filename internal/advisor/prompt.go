package advisor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// decisionSystemPrompt frames the model as the exploration strategist. The
// response contract is deliberately strict; parseDecision enforces it.
const decisionSystemPrompt = `You are an expert exploratory web tester driving a real browser.
Given the current page observation, choose exactly ONE next action that best advances the testing goal.

Respond with a single JSON object and nothing else:
{
  "action": "navigate|click|fill|select|hover|scroll|back|refresh|invoke-tool|done",
  "selector": "<css selector, required for click/fill/select/hover>",
  "value": "<url, input text, option value or scroll direction>",
  "tool_name": "<required for invoke-tool>",
  "tool_params": {},
  "reasoning": "<one or two sentences>",
  "confidence": 0.0,
  "hypothesis": "<what you expect to happen>",
  "observed_issues": [{"title": "...", "description": "...", "severity": "low|medium|high"}]
}

Rules:
- Only target selectors present in the element list.
- Use "done" only when the goal is met or nothing useful remains.
- Report defects you can see in the observation via observed_issues.`

const analysisSystemPrompt = `You are a senior QA engineer triaging a defect report.
Respond with a single JSON object and nothing else:
{"severity": "critical|high|medium|low|info", "recommendation": "...", "false_positive": false, "reasoning": "..."}`

const summarySystemPrompt = `You are a QA lead writing the closing summary of an exploratory testing session.
Summarize in plain prose: what was covered, the most important defects, and suggested next steps. No JSON.`

const maxHistoryInPrompt = 10

// buildDecisionPrompt renders the system and user messages for a decision
// request. Loop-guard directives, when present, are rendered as hard
// constraints at the end so they dominate the model's attention.
func buildDecisionPrompt(dc schemas.DecisionContext) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "## Testing Goal\n%s\n\n", dc.Goal)
	fmt.Fprintf(&b, "## Current Page (step %d)\nURL: %s\nTitle: %s\n", dc.Step, dc.Observation.URL, dc.Observation.Title)
	if dc.Observation.VisibleText != "" {
		fmt.Fprintf(&b, "\nVisible text:\n%s\n", dc.Observation.VisibleText)
	}

	if len(dc.Observation.Elements) > 0 {
		b.WriteString("\n## Interactive Elements\n")
		for _, el := range dc.Observation.Elements {
			fmt.Fprintf(&b, "- %s", el.Selector)
			if el.Text != "" {
				fmt.Fprintf(&b, " (%s)", truncate(el.Text, 60))
			}
			if el.Href != "" {
				fmt.Fprintf(&b, " -> %s", el.Href)
			}
			b.WriteString("\n")
		}
	}

	if len(dc.Observation.ConsoleErrors) > 0 {
		b.WriteString("\n## Console Errors\n")
		for _, ce := range dc.Observation.ConsoleErrors {
			fmt.Fprintf(&b, "- %s\n", truncate(ce.Message, 200))
		}
	}
	if len(dc.Observation.NetworkErrors) > 0 {
		b.WriteString("\n## Network Errors\n")
		for _, ne := range dc.Observation.NetworkErrors {
			fmt.Fprintf(&b, "- %s %s (status %d) %s\n", ne.Method, ne.URL, ne.StatusCode, ne.Failure)
		}
	}

	if len(dc.History) > 0 {
		b.WriteString("\n## Recent Actions\n")
		start := 0
		if len(dc.History) > maxHistoryInPrompt {
			start = len(dc.History) - maxHistoryInPrompt
		}
		for _, h := range dc.History[start:] {
			status := "ok"
			if !h.Success {
				status = "FAILED"
			}
			fmt.Fprintf(&b, "- step %d: %s [%s]\n", h.Step, h.Decision.Summary(), status)
		}
	}

	omitTools := dc.Directive != nil && dc.Directive.OmitTools
	if len(dc.Tools) > 0 && !omitTools {
		b.WriteString("\n## Available Tools (use action \"invoke-tool\")\n")
		for _, t := range dc.Tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}

	if len(dc.Suggestions) > 0 {
		b.WriteString("\n## Persona Suggestions (optional, ranked)\n")
		for _, s := range dc.Suggestions {
			fmt.Fprintf(&b, "%d. %s %s %s — %s\n", s.Rank, s.Kind, s.Selector, s.Value, s.Rationale)
		}
	}

	fmt.Fprintf(&b, "\nFindings so far this session: %d\n", dc.FindingCount)

	if dc.Directive != nil {
		b.WriteString("\n## HARD CONSTRAINTS\n")
		if dc.Directive.Avoid != "" {
			fmt.Fprintf(&b, "- %s\n", dc.Directive.Avoid)
		}
		if omitTools {
			b.WriteString("- Do NOT choose \"invoke-tool\"; pick a navigation or interaction instead.\n")
		}
		if len(dc.Directive.NavigationHints) > 0 {
			b.WriteString("- Unvisited locations, most promising first:\n")
			for i, hint := range dc.Directive.NavigationHints {
				fmt.Fprintf(&b, "  %d. %s\n", i+1, hint)
			}
		}
	}

	return decisionSystemPrompt, b.String()
}

// buildAnalysisPrompt renders the triage request for one finding.
func buildAnalysisPrompt(f schemas.Finding) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nPage: %s\nSource: %s\n", f.Title, f.PageURL, f.Source)
	if f.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", f.Description)
	}
	if f.Evidence != "" {
		fmt.Fprintf(&b, "Evidence: %s\n", truncate(f.Evidence, 1000))
	}
	return analysisSystemPrompt, b.String()
}

// buildSummaryPrompt renders the closing-summary request.
func buildSummaryPrompt(history []schemas.StepOutcome, findings []schemas.Finding) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Session of %d steps, %d findings.\n\n## Actions\n", len(history), len(findings))
	for _, h := range history {
		status := "ok"
		if !h.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "- step %d: %s [%s]\n", h.Step, h.Decision.Summary(), status)
	}
	if len(findings) > 0 {
		b.WriteString("\n## Findings\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", f.Severity, f.Title, f.PageURL)
		}
	}
	return summarySystemPrompt, b.String()
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
