package orchestrator

import "github.com/dusk-indust/evalbuilder/internal/agent"

// Outcome is a policy decision for a tool invocation.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeConfirm
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// PolicyResult is the outcome of evaluating one tool name.
type PolicyResult struct {
	Outcome Outcome
	Reason  string
}

// PolicyEngine decides whether a tool invocation needs user confirmation.
// The five stage sub-agents require confirmation; every other tool, known or
// not, is allowed.
type PolicyEngine struct {
	confirm map[string]bool
}

// NewPolicyEngine creates the default policy.
func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{confirm: map[string]bool{
		agent.ConceptAgent:  true,
		agent.DesignerAgent: true,
		agent.BuilderAgent:  true,
		agent.ReviewerAgent: true,
		agent.PolisherAgent: true,
	}}
}

// Evaluate returns the policy outcome for toolName.
func (p *PolicyEngine) Evaluate(toolName string) PolicyResult {
	if p != nil && p.confirm[toolName] {
		return PolicyResult{
			Outcome: OutcomeConfirm,
			Reason:  "User feedback needed after " + toolName + " completes",
		}
	}
	return PolicyResult{
		Outcome: OutcomeAllow,
		Reason:  "Utility tool, no user approval needed",
	}
}
