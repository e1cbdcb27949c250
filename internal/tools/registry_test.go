// File: internal/tools/registry_test.go
package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// scriptedTool is a minimal Tool for registry tests.
type scriptedTool struct {
	name     string
	schema   map[string]any
	findings []schemas.Finding
	raw      string
	err      error
	runs     int
}

func (t *scriptedTool) Definition() schemas.ToolDefinition {
	return schemas.ToolDefinition{Name: t.name, Description: "scripted", ParamSchema: t.schema}
}

func (t *scriptedTool) Run(_ context.Context, _ ExecutionContext, _ map[string]any) ([]schemas.Finding, string, error) {
	t.runs++
	return t.findings, t.raw, t.err
}

func TestNewRegistry_RejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(zap.NewNop(),
		&scriptedTool{name: "check_links"},
		&scriptedTool{name: "check_links"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestDefinitions_PreserveRegistrationOrder(t *testing.T) {
	r, err := NewRegistry(zap.NewNop(),
		&scriptedTool{name: "b_tool"},
		&scriptedTool{name: "a_tool"},
	)
	require.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b_tool", defs[0].Name)
	assert.Equal(t, "a_tool", defs[1].Name)
}

func TestInvoke_UnknownTool(t *testing.T) {
	r, err := NewRegistry(zap.NewNop())
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "no_such_tool", nil, ExecutionContext{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
	assert.Equal(t, "no_such_tool", result.ToolName)
}

func TestInvoke_RejectsUnexpectedParams(t *testing.T) {
	tool := &scriptedTool{name: "strict_tool", schema: noParamsSchema}
	r, err := NewRegistry(zap.NewNop(), tool)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "strict_tool", map[string]any{"depth": 3}, ExecutionContext{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "parameters invalid")
	assert.Equal(t, 0, tool.runs, "an invalid invocation never reaches the tool")
}

func TestInvoke_ValidatesRequiredParams(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"selector": map[string]any{"type": "string"},
		},
		"required":             []any{"selector"},
		"additionalProperties": false,
	}
	tool := &scriptedTool{name: "param_tool", schema: schema}
	r, err := NewRegistry(zap.NewNop(), tool)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "param_tool", nil, ExecutionContext{})
	assert.False(t, result.Success)

	result = r.Invoke(context.Background(), "param_tool", map[string]any{"selector": "#x"}, ExecutionContext{})
	assert.True(t, result.Success)
	assert.Equal(t, 1, tool.runs)
}

func TestInvoke_ToolFailureIsCaptured(t *testing.T) {
	tool := &scriptedTool{name: "flaky_tool", err: errors.New("page went away")}
	r, err := NewRegistry(zap.NewNop(), tool)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "flaky_tool", nil, ExecutionContext{})
	assert.False(t, result.Success)
	assert.Equal(t, "page went away", result.Error)
}

func TestInvoke_SuccessCarriesFindings(t *testing.T) {
	tool := &scriptedTool{
		name:     "finder",
		findings: []schemas.Finding{{ID: "f-1", Title: "Dead link"}},
		raw:      "1 link(s) scanned, 1 dead",
	}
	r, err := NewRegistry(zap.NewNop(), tool)
	require.NoError(t, err)

	result := r.Invoke(context.Background(), "finder", nil, ExecutionContext{})
	assert.True(t, result.Success)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "Dead link", result.Findings[0].Title)
	assert.Equal(t, "1 link(s) scanned, 1 dead", result.RawOutput)
}

func TestNewDefaultRegistry_BuiltinSet(t *testing.T) {
	r, err := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, err)

	names := make([]string, 0, 4)
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"find_broken_images", "check_console_errors", "check_forms", "check_links"}, names)
}
