// File: internal/loopguard/signature_test.go
package loopguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

func TestToolSignature_ParamOrderIsCanonical(t *testing.T) {
	a := ToolSignature("find_broken_images", map[string]any{"scope": "page", "depth": 2})
	b := ToolSignature("find_broken_images", map[string]any{"depth": 2, "scope": "page"})
	assert.Equal(t, a, b, "key order in the params map must not change the signature")
	assert.Equal(t, "find_broken_images(depth=2,scope=page)", a)
}

func TestToolSignature_NoParams(t *testing.T) {
	assert.Equal(t, "check_console_errors()", ToolSignature("check_console_errors", nil))
	assert.Equal(t, "check_console_errors()", ToolSignature("check_console_errors", map[string]any{}))
}

func TestActionSignature_Normalization(t *testing.T) {
	tests := []struct {
		name string
		a, b schemas.ActionDecision
		same bool
	}{
		{
			name: "case and whitespace on selector",
			a:    schemas.ActionDecision{Kind: schemas.ActionClick, Selector: "#Login "},
			b:    schemas.ActionDecision{Kind: schemas.ActionClick, Selector: "#login"},
			same: true,
		},
		{
			name: "quote stripping on value",
			a:    schemas.ActionDecision{Kind: schemas.ActionFill, Selector: "#q", Value: `"admin"`},
			b:    schemas.ActionDecision{Kind: schemas.ActionFill, Selector: "#q", Value: "admin"},
			same: true,
		},
		{
			name: "long values collide after truncation",
			a:    schemas.ActionDecision{Kind: schemas.ActionFill, Selector: "#q", Value: strings.Repeat("a", 60)},
			b:    schemas.ActionDecision{Kind: schemas.ActionFill, Selector: "#q", Value: strings.Repeat("a", 80)},
			same: true,
		},
		{
			name: "different kinds never collide",
			a:    schemas.ActionDecision{Kind: schemas.ActionClick, Selector: "#x"},
			b:    schemas.ActionDecision{Kind: schemas.ActionHover, Selector: "#x"},
			same: false,
		},
		{
			name: "different selectors never collide",
			a:    schemas.ActionDecision{Kind: schemas.ActionClick, Selector: "#x"},
			b:    schemas.ActionDecision{Kind: schemas.ActionClick, Selector: "#y"},
			same: false,
		},
		{
			name: "different tools never collide",
			a:    schemas.ActionDecision{Kind: schemas.ActionInvokeTool, ToolName: "check_links"},
			b:    schemas.ActionDecision{Kind: schemas.ActionInvokeTool, ToolName: "check_forms"},
			same: false,
		},
		{
			name: "repeated tool collides with itself",
			a:    schemas.ActionDecision{Kind: schemas.ActionInvokeTool, ToolName: "check_links"},
			b:    schemas.ActionDecision{Kind: schemas.ActionInvokeTool, ToolName: "Check_Links "},
			same: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, ActionSignature(tt.a), ActionSignature(tt.b))
			} else {
				assert.NotEqual(t, ActionSignature(tt.a), ActionSignature(tt.b))
			}
		})
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := newWindow(3)
	w.append("a")
	w.append("b")
	w.append("a")
	assert.Equal(t, 2, w.count("a"))

	// Overflow evicts the first "a".
	w.append("c")
	assert.Equal(t, 1, w.count("a"))
	assert.Equal(t, 3, w.len())

	w.clear()
	assert.Equal(t, 0, w.len())
	assert.Equal(t, 0, w.count("a"))
}
