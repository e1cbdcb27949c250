package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
)

// Evaluator is the slice of the browser adapter tools need: run a JS
// expression in the live page and decode its result.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

// ExecutionContext is everything a tool gets to work with for one
// invocation.
type ExecutionContext struct {
	Browser     Evaluator
	Observation schemas.PageObservation
	SessionID   string
	Step        int
}

// Tool is one registered page-analysis check.
type Tool interface {
	Definition() schemas.ToolDefinition
	Run(ctx context.Context, ec ExecutionContext, params map[string]any) ([]schemas.Finding, string, error)
}

// Registry holds the available tools and validates invocation parameters
// against each tool's JSON schema before running it.
type Registry struct {
	logger *zap.Logger
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry builds a registry over the given tools. Duplicate names are a
// construction error.
func NewRegistry(logger *zap.Logger, tools ...Tool) (*Registry, error) {
	r := &Registry{
		logger: logger.Named("Tools"),
		byName: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.byName[name] = t
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// NewDefaultRegistry builds a registry with the built-in page tools.
func NewDefaultRegistry(logger *zap.Logger) (*Registry, error) {
	return NewRegistry(logger,
		&brokenImagesTool{},
		&consoleErrorsTool{},
		&formsTool{},
		&linksTool{},
	)
}

// Definitions lists the registered tools in registration order, for the
// advisor prompt.
func (r *Registry) Definitions() []schemas.ToolDefinition {
	defs := make([]schemas.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Invoke validates params against the tool's schema and runs it. A ToolResult
// is always returned, failed or not, so the caller can record the outcome
// uniformly.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, ec ExecutionContext) schemas.ToolResult {
	start := time.Now()
	result := schemas.ToolResult{ToolName: name, ExecutedAt: start}

	tool, ok := r.byName[name]
	if !ok {
		result.Error = fmt.Sprintf("unknown tool %q", name)
		result.Duration = time.Since(start)
		return result
	}

	if err := r.validateParams(tool.Definition(), params); err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	findings, raw, err := tool.Run(ctx, ec, params)
	result.Duration = time.Since(start)
	if err != nil {
		r.logger.Warn("Tool execution failed", zap.String("tool", name), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Findings = findings
	result.RawOutput = raw
	return result
}

func (r *Registry) validateParams(def schemas.ToolDefinition, params map[string]any) error {
	if def.ParamSchema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	schemaLoader := gojsonschema.NewGoLoader(def.ParamSchema)
	docLoader := gojsonschema.NewGoLoader(params)
	res, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("tool %s parameter validation failed: %w", def.Name, err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("tool %s parameters invalid: %s", def.Name, strings.Join(msgs, "; "))
	}
	return nil
}
