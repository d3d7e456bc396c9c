package mcptools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/agent"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

// Service handles MCP tool calls against a Coordinator.
type Service struct {
	coord   *orchestrator.Coordinator
	sandbox *agent.Sandbox
	hooks   agent.Hooks
	logger  *zap.Logger
}

// NewService creates a Service. sandbox may be nil, in which case
// preview_in_sandbox reports an error result.
func NewService(coord *orchestrator.Coordinator, sandbox *agent.Sandbox, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coord:   coord,
		sandbox: sandbox,
		hooks:   agent.Hooks{Logger: logger},
		logger:  logger,
	}
}

// SubmitMessage sends the user's text to the session and returns the events
// of the resulting turn.
func (s *Service) SubmitMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitMessageInput,
) (*mcp.CallToolResult, TurnOutput, error) {
	if input.SessionID == "" {
		return nil, TurnOutput{}, fmt.Errorf("sessionId is required")
	}
	turn, err := s.coord.SubmitMessage(ctx, input.SessionID, input.Text)
	if err != nil {
		return nil, TurnOutput{}, err
	}
	out, err := s.collect(ctx, input.SessionID, turn)
	return nil, out, err
}

// ResolveConfirmation answers the session's pending confirmation.
func (s *Service) ResolveConfirmation(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResolveConfirmationInput,
) (*mcp.CallToolResult, TurnOutput, error) {
	turn, err := s.coord.ResolveConfirmation(ctx, input.SessionID, input.Approved, input.Feedback)
	if err != nil {
		return nil, TurnOutput{}, err
	}
	out, err := s.collect(ctx, input.SessionID, turn)
	return nil, out, err
}

// GetState returns the session's state snapshot.
func (s *Service) GetState(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetStateInput,
) (*mcp.CallToolResult, GetStateOutput, error) {
	snap, err := s.coord.GetState(input.SessionID)
	if err != nil {
		return nil, GetStateOutput{}, err
	}
	out := GetStateOutput{
		SessionID: input.SessionID,
		Stage:     orchestrator.SnapshotStage(snap).String(),
		State:     snap,
	}
	if p, ok := s.coord.Pending(input.SessionID); ok {
		out.Pending = pendingOutput(p)
	}
	return nil, out, nil
}

// PreviewInSandbox validates and stores an HTML document for preview.
// Validation problems are reported in the output, not as tool errors.
func (s *Service) PreviewInSandbox(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input PreviewInput,
) (*mcp.CallToolResult, PreviewOutput, error) {
	if s.sandbox == nil {
		return nil, PreviewOutput{}, errors.New("sandbox preview is disabled")
	}

	args := map[string]any{"html": input.HTML, "css": input.CSS, "js": input.JS}
	if short := s.hooks.BeforeTool(agent.PreviewToolName, args); short != nil {
		return nil, PreviewOutput{
			Status: string(agent.PreviewError),
			Error:  agent.StringArg(short, "error"),
		}, nil
	}

	res := s.sandbox.Render(input.HTML, input.CSS, input.JS)
	s.hooks.AfterTool(agent.PreviewToolName, res.Map())
	return nil, PreviewOutput{
		Status:     string(res.Status),
		PreviewID:  res.PreviewID,
		PreviewURL: res.PreviewURL,
		Error:      res.Error,
	}, nil
}

// collect drains turn until it ends or ctx is done. An abandoned turn keeps
// running; its remaining events are dropped.
func (s *Service) collect(ctx context.Context, sessionID string, turn *orchestrator.Turn) (TurnOutput, error) {
	out := TurnOutput{SessionID: sessionID, Events: []EventOutput{}}
	for ev := range turn.Events() {
		out.Events = append(out.Events, eventOutput(ev))
		if err := ctx.Err(); err != nil {
			s.logger.Debug("mcp caller left mid-turn", zap.String("session", sessionID))
			return TurnOutput{}, err
		}
	}
	out.Result = turn.Result().String()
	if p, ok := s.coord.Pending(sessionID); ok && turn.Result() == orchestrator.TurnAwaitingConfirmation {
		out.Pending = pendingOutput(p)
	}
	return out, nil
}

func eventOutput(ev orchestrator.Event) EventOutput {
	out := EventOutput{ID: ev.ID, Author: ev.Author, Text: ev.Text()}
	for _, c := range ev.ToolCallRequests() {
		out.ToolCalls = append(out.ToolCalls, ToolCallOutput{ID: c.ID, Name: c.Name, Args: c.Args})
	}
	for _, r := range ev.ToolCallResults() {
		out.ToolResults = append(out.ToolResults, ToolCallOutput{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return out
}

func pendingOutput(p orchestrator.PendingConfirmation) *PendingOutput {
	return &PendingOutput{
		ID:             p.ID,
		Stage:          p.Stage.String(),
		ToolName:       p.ToolName,
		ProposedOutput: p.ProposedOutput,
		Reason:         p.Reason,
	}
}
