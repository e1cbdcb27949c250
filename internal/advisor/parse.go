package advisor

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBlockRegex extracts the payload of a fenced ```json block. Models are
// told to answer with bare JSON but routinely wrap it in markdown anyway.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// extractJSON pulls the most plausible JSON object out of free-form model
// output: a fenced code block if present, otherwise the span from the first
// '{' to the last '}'.
func extractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	if m := jsonBlockRegex.FindStringSubmatch(trimmed); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1]), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	return trimmed[start : end+1], nil
}

// parseDecision turns raw advisor output into a structurally valid
// ActionDecision. Every failure mode wraps ErrMalformedResponse so the
// gateway can apply its parse-or-default rule.
func parseDecision(raw string) (schemas.ActionDecision, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return schemas.ActionDecision{}, err
	}

	var decision schemas.ActionDecision
	if err := json.UnmarshalFromString(payload, &decision); err != nil {
		return schemas.ActionDecision{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	decision.ClampConfidence()
	if err := decision.Validate(); err != nil {
		return schemas.ActionDecision{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decision, nil
}

// parseAnalysis turns raw advisor output into a FindingAnalysis. Unknown
// severities fall back to medium rather than failing the whole analysis.
func parseAnalysis(raw string) (schemas.FindingAnalysis, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return schemas.FindingAnalysis{}, err
	}

	var analysis schemas.FindingAnalysis
	if err := json.UnmarshalFromString(payload, &analysis); err != nil {
		return schemas.FindingAnalysis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	analysis.Severity = schemas.Severity(strings.ToLower(string(analysis.Severity)))
	if !schemas.ValidSeverity(analysis.Severity) {
		analysis.Severity = schemas.SeverityMedium
	}
	return analysis, nil
}
