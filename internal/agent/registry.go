package agent

import (
	"fmt"
	"sync"

	"github.com/dusk-indust/evalbuilder/internal/prompts"
)

// Registry maps sub-agent names to their definitions.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*SubAgent
	order  []string
}

// NewRegistry creates a Registry pre-registered with the five stage agents.
// The builder agent gets the sandbox preview tool when sandbox is non-nil.
func NewRegistry(sandbox *Sandbox) *Registry {
	r := &Registry{agents: make(map[string]*SubAgent)}

	r.Register(&SubAgent{
		Name:         ConceptAgent,
		Description:  "Brainstorms evaluation ideas and defines success criteria",
		Instruction:  prompts.WithGlobal(prompts.MustLoad(prompts.Concept)),
		OutputKey:    "concept_output",
		GoogleSearch: true,
	})
	r.Register(&SubAgent{
		Name:         DesignerAgent,
		Description:  "Designs the UI structure and component layout",
		Instruction:  prompts.WithGlobal(prompts.MustLoad(prompts.Designer)),
		OutputKey:    "design_output",
		GoogleSearch: true,
	})

	builder := &SubAgent{
		Name:         BuilderAgent,
		Description:  "Generates HTML, CSS and JavaScript for the evaluation UI",
		Instruction:  prompts.WithGlobal(prompts.MustLoad(prompts.Builder)),
		OutputKey:    "code_output",
		GoogleSearch: true,
	}
	if sandbox != nil {
		builder.Tools = append(builder.Tools, sandbox.Tool())
	}
	r.Register(builder)

	r.Register(&SubAgent{
		Name:        ReviewerAgent,
		Description: "Reviews code quality, accessibility and UX",
		Instruction: prompts.WithGlobal(prompts.MustLoad(prompts.Reviewer)),
		OutputKey:   "review_output",
	})
	r.Register(&SubAgent{
		Name:        PolisherAgent,
		Description: "Applies review feedback to produce the final code",
		Instruction: prompts.WithGlobal(prompts.MustLoad(prompts.Polisher)),
		OutputKey:   "final_output",
	})
	return r
}

// Register adds or replaces a sub-agent.
func (r *Registry) Register(a *SubAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[a.Name]; !ok {
		r.order = append(r.order, a.Name)
	}
	r.agents[a.Name] = a
}

// Lookup returns the sub-agent registered under name.
func (r *Registry) Lookup(name string) (*SubAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent: no sub-agent registered as %q", name)
	}
	return a, nil
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
