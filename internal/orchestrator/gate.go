package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GateState is the confirmation gate's state.
type GateState int

const (
	GateRunning GateState = iota
	GateAwaitingConfirmation
)

func (s GateState) String() string {
	switch s {
	case GateRunning:
		return "running"
	case GateAwaitingConfirmation:
		return "awaiting-confirmation"
	default:
		return "unknown"
	}
}

// ConfirmationToolName is the tool call a paused pipeline emits to ask the
// user for a decision.
const ConfirmationToolName = "ask_user_confirmation"

// PendingConfirmation is an outstanding request for a human decision.
type PendingConfirmation struct {
	ID             string    `json:"id"`
	Stage          Stage     `json:"stage"`
	ToolName       string    `json:"toolName"`
	ProposedOutput string    `json:"proposedOutput"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Request builds the ask_user_confirmation tool call for p.
func (p PendingConfirmation) Request() ToolCallRequest {
	return ToolCallRequest{
		ID:   p.ID,
		Name: ConfirmationToolName,
		Args: map[string]any{
			"toolName":       p.ToolName,
			"stage":          p.Stage.String(),
			"output":         p.ProposedOutput,
			"reason":         p.Reason,
			"confirmationId": p.ID,
		},
	}
}

// Decision is the human's answer to a pending confirmation.
type Decision struct {
	Approved bool
	Feedback string
}

// Gate pauses a session's pipeline until a decision arrives. At most one
// confirmation can be pending.
type Gate struct {
	mu       sync.Mutex
	state    GateState
	pending  *PendingConfirmation
	decision chan Decision
}

// NewGate creates a gate in the Running state.
func NewGate() *Gate {
	return &Gate{}
}

// State returns the gate's current state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the outstanding confirmation, if any.
func (g *Gate) Pending() (PendingConfirmation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingConfirmation{}, false
	}
	return *g.pending, true
}

// Suspend moves the gate to AwaitingConfirmation, calls notify and blocks
// until Resolve delivers a decision or ctx is done. notify runs after the
// transition, so a caller reacting to it can resolve immediately. There is
// no timeout; on cancellation the gate returns to Running, the pending record
// is dropped and ctx.Err() is returned.
func (g *Gate) Suspend(ctx context.Context, p PendingConfirmation, notify func(PendingConfirmation)) (Decision, error) {
	g.mu.Lock()
	if g.state == GateAwaitingConfirmation {
		g.mu.Unlock()
		return Decision{}, fmt.Errorf("orchestrator: suspend %s: %w", p.ToolName, ErrConfirmationPending)
	}
	ch := make(chan Decision, 1)
	g.state = GateAwaitingConfirmation
	g.pending = &p
	g.decision = ch
	g.mu.Unlock()

	if notify != nil {
		notify(p)
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		g.mu.Lock()
		if g.decision == ch {
			g.state = GateRunning
			g.pending = nil
			g.decision = nil
		}
		g.mu.Unlock()
		return Decision{}, ctx.Err()
	}
}

// Resolve delivers d to the suspended pipeline and returns the gate to
// Running.
func (g *Gate) Resolve(d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GateAwaitingConfirmation {
		return fmt.Errorf("orchestrator: resolve: %w", ErrNoPendingConfirmation)
	}
	g.decision <- d
	g.state = GateRunning
	g.pending = nil
	g.decision = nil
	return nil
}
