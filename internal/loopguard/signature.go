package loopguard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// maxValueInSignature bounds the value portion of an action signature so
// long form inputs still collide when they are effectively the same action.
const maxValueInSignature = 40

// ToolSignature renders a tool invocation as a canonical string: the tool
// name plus its parameters sorted by key. Signatures are compared for exact
// equality, never fuzzily.
func ToolSignature(toolName string, params map[string]any) string {
	if len(params) == 0 {
		return toolName + "()"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(toolName)
	b.WriteString("(")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%v", k, params[k])
	}
	b.WriteString(")")
	return b.String()
}

// ActionSignature renders a decision as a canonical string: kind, normalized
// target and a truncated, case/quote-normalized value. Two decisions with the
// same signature are the same action for loop-detection purposes.
func ActionSignature(d schemas.ActionDecision) string {
	target := normalizeTarget(d.Selector)
	if d.Kind == schemas.ActionInvokeTool {
		// Tool invocations carry no selector; the tool name keeps distinct
		// tools from aliasing to one signature.
		target = normalizeTarget(d.ToolName)
	}
	value := normalizeValue(d.Value)
	return fmt.Sprintf("%s|%s|%s", d.Kind, target, value)
}

func normalizeTarget(selector string) string {
	return strings.ToLower(strings.TrimSpace(selector))
}

func normalizeValue(value string) string {
	v := strings.TrimSpace(value)
	v = strings.ToLower(v)
	v = strings.ReplaceAll(v, `"`, "")
	v = strings.ReplaceAll(v, "'", "")
	if len(v) > maxValueInSignature {
		v = v[:maxValueInSignature]
	}
	return v
}
