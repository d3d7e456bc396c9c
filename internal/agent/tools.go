package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// Compile-time interface check.
var _ Tool = (*FunctionTool)(nil)

// FunctionTool adapts a plain function to the Tool interface.
type FunctionTool struct {
	decl llm.FunctionDecl
	fn   func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// NewFunctionTool creates a tool from a declaration and a handler.
func NewFunctionTool(decl llm.FunctionDecl, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) *FunctionTool {
	return &FunctionTool{decl: decl, fn: fn}
}

// Decl returns the tool declaration.
func (t *FunctionTool) Decl() llm.FunctionDecl { return t.decl }

// Call invokes the handler.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.fn(ctx, args)
}

// StringArg returns args[key] as a string, or "" when absent or not a string.
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

// ErrorResult builds a validation failure result.
func ErrorResult(msg string) map[string]any {
	return map[string]any{"status": "error", "error": msg}
}

// Hooks run around every tool execution.
type Hooks struct {
	Logger *zap.Logger
}

// BeforeTool validates tool arguments. A non-nil result short-circuits the
// call and is returned to the model as the tool's result.
func (h Hooks) BeforeTool(name string, args map[string]any) map[string]any {
	if name == PreviewToolName && strings.TrimSpace(StringArg(args, "html")) == "" {
		return ErrorResult("HTML content is required for sandbox preview")
	}
	return nil
}

// AfterTool observes a tool result. It never alters the result.
func (h Hooks) AfterTool(name string, result map[string]any) {
	if h.Logger == nil {
		return
	}
	if name == PreviewToolName && result["status"] == "rendered" {
		h.Logger.Debug("html rendered in sandbox",
			zap.String("tool", name),
			zap.Any("previewId", result["previewId"]))
	}
}
