package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// CallResult holds the outcome of a single tool call after fan-out.
type CallResult struct {
	Call     llm.FunctionCall
	Response map[string]any

	// Err is non-nil if the tool itself failed. Validation failures are
	// reported in Response instead.
	Err error
}

// FanOut executes model-issued tool calls in parallel.
type FanOut struct {
	hooks Hooks
}

// NewFanOut creates a FanOut that runs hooks around every call.
func NewFanOut(hooks Hooks) *FanOut {
	return &FanOut{hooks: hooks}
}

// Run executes calls against the agent's tools in parallel. Results are
// returned in call order. The first tool failure cancels the derived context
// so remaining calls return early; all collected results are returned with
// that error.
func (f *FanOut) Run(ctx context.Context, a *SubAgent, calls []llm.FunctionCall) ([]CallResult, error) {
	results := make([]CallResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for i, call := range calls {
		results[i].Call = call

		if short := f.hooks.BeforeTool(call.Name, call.Args); short != nil {
			results[i].Response = short
			continue
		}

		tool, ok := a.Tool(call.Name)
		if !ok {
			results[i].Response = ErrorResult(fmt.Sprintf("unknown tool %q", call.Name))
			continue
		}

		g.Go(func() error {
			resp, err := tool.Call(gctx, call.Args)
			if err != nil {
				results[i].Err = err
				return fmt.Errorf("agent: tool %s: %w", call.Name, err)
			}
			f.hooks.AfterTool(call.Name, resp)
			results[i].Response = resp
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
