// Package agent defines the stage sub-agents, the utility tools they may call
// and the parallel executor for model-issued tool calls.
package agent

import (
	"context"

	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// Sub-agent names. The coordinator invokes each one as a tool.
const (
	ConceptAgent  = "concept_agent"
	DesignerAgent = "designer_agent"
	BuilderAgent  = "builder_agent"
	ReviewerAgent = "reviewer_agent"
	PolisherAgent = "polisher_agent"
)

// CoordinatorName is the author of coordinator events.
const CoordinatorName = "eval_coordinator"

// SubAgent is a language-model agent that produces one stage output.
type SubAgent struct {
	// Name is the tool name the coordinator uses to invoke the agent.
	Name string

	Description string

	// Instruction is the system instruction, global context included.
	Instruction string

	// OutputKey is the session state key that receives the agent's output.
	OutputKey string

	// Tools are the function tools the model may call.
	Tools []Tool

	// GoogleSearch enables provider-side search grounding.
	GoogleSearch bool
}

// FunctionDecls returns the declarations of the agent's tools.
func (a *SubAgent) FunctionDecls() []llm.FunctionDecl {
	if len(a.Tools) == 0 {
		return nil
	}
	decls := make([]llm.FunctionDecl, 0, len(a.Tools))
	for _, t := range a.Tools {
		decls = append(decls, t.Decl())
	}
	return decls
}

// Tool returns the agent tool with the given name.
func (a *SubAgent) Tool(name string) (Tool, bool) {
	for _, t := range a.Tools {
		if t.Decl().Name == name {
			return t, true
		}
	}
	return nil, false
}

// Tool is a function the model may call.
type Tool interface {
	Decl() llm.FunctionDecl

	// Call runs the tool. Validation problems are reported in the returned
	// map with status "error"; a non-nil error means the tool itself failed.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}
