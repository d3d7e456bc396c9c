package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/a2a"
)

// Compile-time interface check.
var _ a2a.Handler = (*A2AHandler)(nil)

// A2AHandler serves a Coordinator over A2A. Each turn becomes a task in the
// turn's context (the session id); the turn's events become the task history.
type A2AHandler struct {
	coord  *Coordinator
	tasks  *a2a.TaskStore
	logger *zap.Logger
}

// NewA2AHandler creates an A2AHandler for coord.
func NewA2AHandler(coord *Coordinator, logger *zap.Logger) *A2AHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &A2AHandler{coord: coord, tasks: a2a.NewTaskStore(), logger: logger}
}

// HandleSendMessage runs a turn to completion and returns its task.
func (h *A2AHandler) HandleSendMessage(ctx context.Context, req a2a.SendMessageRequest) (*a2a.Task, error) {
	task, turn, err := h.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	task, err = h.drain(ctx, task, turn, nil)
	if err != nil {
		return nil, err
	}
	if cfg := req.Configuration; cfg != nil && cfg.HistoryLength != nil {
		trimHistory(task, *cfg.HistoryLength)
	}
	return task, nil
}

// HandleStreamMessage runs a turn, sending the new task, one message per
// event and a final status update.
func (h *A2AHandler) HandleStreamMessage(ctx context.Context, req a2a.SendMessageRequest, send func(a2a.StreamEvent) error) error {
	task, turn, err := h.submit(ctx, req)
	if err != nil {
		return err
	}
	if err := send(a2a.StreamEvent{Task: task}); err != nil {
		_, _ = h.drain(ctx, task, turn, nil)
		return err
	}
	final, err := h.drain(ctx, task, turn, send)
	if err != nil {
		return err
	}
	return send(a2a.StreamEvent{StatusUpdate: &a2a.TaskStatusUpdateEvent{
		TaskID:    final.ID,
		ContextID: final.ContextID,
		Status:    final.Status,
	}})
}

// HandleResolveConfirmation answers the context's pending confirmation.
func (h *A2AHandler) HandleResolveConfirmation(ctx context.Context, req a2a.ResolveConfirmationRequest) (*a2a.Task, error) {
	if req.ContextID == "" {
		return nil, a2a.NewError(a2a.ErrCodeInvalidParams, "contextId is required")
	}
	if req.ConfirmationID != "" {
		p, ok := h.coord.Pending(req.ContextID)
		if ok && p.ID != req.ConfirmationID {
			return nil, a2a.NewError(a2a.ErrCodeProtocolViolation,
				fmt.Sprintf("confirmation %q is not pending", req.ConfirmationID))
		}
	}

	turn, err := h.coord.ResolveConfirmation(ctx, req.ContextID, req.Approved, req.Feedback)
	if err != nil {
		return nil, rpcError(err)
	}

	decision := "Approved."
	if !req.Approved {
		decision = "Rejected."
		if req.Feedback != "" {
			decision = "Rejected: " + req.Feedback
		}
	}
	task, err := h.newTask(req.ContextID, userMessage(req.ContextID, decision))
	if err != nil {
		return nil, err
	}
	return h.drain(ctx, task, turn, nil)
}

// HandleGetSessionState returns the session's state snapshot and pending
// confirmation.
func (h *A2AHandler) HandleGetSessionState(_ context.Context, req a2a.GetSessionStateRequest) (*a2a.SessionState, error) {
	snap, err := h.coord.GetState(req.ContextID)
	if err != nil {
		return nil, rpcError(err)
	}
	out := &a2a.SessionState{
		ContextID: req.ContextID,
		Stage:     SnapshotStage(snap).String(),
		State:     snap,
	}
	if p, ok := h.coord.Pending(req.ContextID); ok {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: encode pending confirmation: %w", err)
		}
		out.Pending = data
	}
	return out, nil
}

// HandleGetTask returns a stored task, trimmed to HistoryLength messages.
func (h *A2AHandler) HandleGetTask(_ context.Context, req a2a.GetTaskRequest) (*a2a.Task, error) {
	task, err := h.tasks.Get(req.ID)
	if err != nil {
		return nil, a2a.NewError(a2a.ErrCodeTaskNotFound, err.Error())
	}
	if req.HistoryLength != nil {
		trimHistory(task, *req.HistoryLength)
	}
	return task, nil
}

// HandleListTasks lists stored tasks.
func (h *A2AHandler) HandleListTasks(_ context.Context, req a2a.ListTasksRequest) (*a2a.ListTasksResponse, error) {
	resp, err := h.tasks.List(req)
	if err != nil {
		return nil, a2a.NewError(a2a.ErrCodeInvalidParams, err.Error())
	}
	for i := range resp.Tasks {
		if req.HistoryLength != nil {
			trimHistory(&resp.Tasks[i], *req.HistoryLength)
		}
		if !req.IncludeArtifacts {
			resp.Tasks[i].Artifacts = nil
		}
	}
	return resp, nil
}

// HandleCancelTask ends the task's session. Committed stage outputs are
// kept.
func (h *A2AHandler) HandleCancelTask(_ context.Context, req a2a.CancelTaskRequest) (*a2a.Task, error) {
	task, err := h.tasks.Get(req.ID)
	if err != nil {
		return nil, a2a.NewError(a2a.ErrCodeTaskNotFound, err.Error())
	}
	if task.Status.State.IsTerminal() {
		return nil, a2a.NewError(a2a.ErrCodeTaskNotCancelable,
			fmt.Sprintf("task %q is already %s", task.ID, task.Status.State))
	}
	if err := h.coord.EndSession(task.ContextID); err != nil {
		return nil, rpcError(err)
	}
	h.setStatus(task.ID, a2a.TaskStateCanceled, nil)
	h.logger.Info("task canceled", zap.String("task", task.ID), zap.String("session", task.ContextID))
	return h.tasks.Get(task.ID)
}

// submit validates the message, starts the turn and records its task.
func (h *A2AHandler) submit(ctx context.Context, req a2a.SendMessageRequest) (*a2a.Task, *Turn, error) {
	msg := req.Message
	if msg.Role != "" && msg.Role != a2a.RoleUser {
		return nil, nil, a2a.NewError(a2a.ErrCodeInvalidParams, "message role must be \"user\"")
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	turn, err := h.coord.SubmitMessage(ctx, contextID, messageText(msg))
	if err != nil {
		return nil, nil, rpcError(err)
	}

	if msg.MessageID == "" {
		msg.MessageID = a2a.NewMessageID()
	}
	msg.ContextID = contextID
	msg.Role = a2a.RoleUser
	task, err := h.newTask(contextID, msg)
	if err != nil {
		return nil, nil, err
	}
	return task, turn, nil
}

func (h *A2AHandler) newTask(contextID string, first a2a.Message) (*a2a.Task, error) {
	id := a2a.NewTaskID()
	first.TaskID = id
	task := a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now().UTC()},
		History:   []a2a.Message{first},
	}
	if err := h.tasks.Create(task); err != nil {
		return nil, fmt.Errorf("orchestrator: record task: %w", err)
	}
	return h.tasks.Get(id)
}

// drain consumes the turn into the task's history, forwarding each message
// to send when it is set, and records the final state. The turn is always
// consumed to its end so the pipeline is never left blocked: after a send
// failure messages are only recorded, and when ctx is done drain returns
// while recording continues in the background.
func (h *A2AHandler) drain(ctx context.Context, task *a2a.Task, turn *Turn, send func(a2a.StreamEvent) error) (*a2a.Task, error) {
	var (
		mu       sync.Mutex
		detached bool
	)
	forward := func(ev a2a.StreamEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if detached || send == nil {
			return nil
		}
		return send(ev)
	}

	done := make(chan error, 1)
	go func() { done <- h.record(task, turn, forward) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return h.tasks.Get(task.ID)
	case <-ctx.Done():
		mu.Lock()
		detached = true
		mu.Unlock()
		h.logger.Debug("caller left before turn ended", zap.String("task", task.ID))
		return nil, ctx.Err()
	}
}

func (h *A2AHandler) record(task *a2a.Task, turn *Turn, forward func(a2a.StreamEvent) error) error {
	var (
		last    *a2a.Message
		sendErr error
	)
	for ev := range turn.Events() {
		msg, err := EventToMessage(ev, task.ContextID, task.ID)
		if err != nil {
			h.logger.Warn("dropping unencodable event", zap.String("task", task.ID), zap.Error(err))
			continue
		}
		if _, err := h.tasks.AppendHistory(task.ID, msg); err != nil {
			h.logger.Warn("record event", zap.String("task", task.ID), zap.Error(err))
		}
		last = &msg
		if sendErr == nil {
			sendErr = forward(a2a.StreamEvent{Message: &msg})
		}
	}

	state := taskState(turn.Result())
	h.setStatus(task.ID, state, last)
	if state == a2a.TaskStateCompleted {
		h.attachFinalOutput(task.ID, task.ContextID)
	}
	return sendErr
}

func (h *A2AHandler) setStatus(id string, state a2a.TaskState, msg *a2a.Message) {
	_ = h.tasks.Update(id, func(t *a2a.Task) {
		t.Status = a2a.TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()}
	})
}

func (h *A2AHandler) attachFinalOutput(taskID, contextID string) {
	snap, err := h.coord.GetState(contextID)
	if err != nil {
		return
	}
	final, ok := snap[KeyFinalOutput].(string)
	if !ok {
		return
	}
	_ = h.tasks.Update(taskID, func(t *a2a.Task) {
		t.Artifacts = append(t.Artifacts, a2a.Artifact{
			ArtifactID:  uuid.NewString(),
			Name:        KeyFinalOutput,
			Description: "Polished evaluation UI",
			Parts:       []a2a.Part{{Text: final, MediaType: "text/html"}},
		})
	})
}

// EventToMessage converts an event to an A2A message. Text parts map to text
// parts; tool call parts are carried as data parts in their tagged JSON form.
func EventToMessage(ev Event, contextID, taskID string) (a2a.Message, error) {
	role := a2a.RoleAgent
	if ev.Author == AuthorUser {
		role = a2a.RoleUser
	}
	ts := ev.Timestamp
	msg := a2a.Message{
		MessageID: ev.ID,
		ContextID: contextID,
		TaskID:    taskID,
		Role:      role,
		Author:    ev.Author,
		Timestamp: &ts,
		Parts:     make([]a2a.Part, 0, len(ev.Parts)),
	}
	for _, p := range ev.Parts {
		if t, ok := p.(TextPart); ok {
			msg.Parts = append(msg.Parts, a2a.TextPart(t.Text))
			continue
		}
		data, err := MarshalPart(p)
		if err != nil {
			return a2a.Message{}, err
		}
		msg.Parts = append(msg.Parts, a2a.Part{Data: data, MediaType: "application/json"})
	}
	return msg, nil
}

// MessageToEvent is the inverse of EventToMessage.
func MessageToEvent(msg a2a.Message) (Event, error) {
	ev := Event{ID: msg.MessageID, Author: msg.Author, Parts: make([]Part, 0, len(msg.Parts))}
	if msg.Timestamp != nil {
		ev.Timestamp = *msg.Timestamp
	}
	if ev.Author == "" {
		ev.Author = string(msg.Role)
	}
	for _, p := range msg.Parts {
		if !p.IsData() {
			ev.Parts = append(ev.Parts, TextPart{Text: p.Text})
			continue
		}
		part, err := UnmarshalPart(p.Data)
		if err != nil {
			return Event{}, err
		}
		ev.Parts = append(ev.Parts, part)
	}
	return ev, nil
}

func taskState(r TurnResult) a2a.TaskState {
	switch r {
	case TurnAwaitingConfirmation:
		return a2a.TaskStateInputRequired
	case TurnCompleted, TurnIdle:
		return a2a.TaskStateCompleted
	case TurnFailed:
		return a2a.TaskStateFailed
	case TurnCanceled:
		return a2a.TaskStateCanceled
	default:
		return a2a.TaskStateWorking
	}
}

// rpcError maps coordinator errors to JSON-RPC error codes.
func rpcError(err error) error {
	switch {
	case errors.Is(err, ErrProtocolViolation):
		return a2a.NewError(a2a.ErrCodeProtocolViolation, err.Error())
	case errors.Is(err, ErrSessionNotFound):
		return a2a.NewError(a2a.ErrCodeSessionNotFound, err.Error())
	default:
		return err
	}
}

func messageText(m a2a.Message) string {
	var parts []string
	for _, p := range m.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func userMessage(contextID, text string) a2a.Message {
	now := time.Now().UTC()
	return a2a.Message{
		MessageID: a2a.NewMessageID(),
		ContextID: contextID,
		Role:      a2a.RoleUser,
		Author:    AuthorUser,
		Timestamp: &now,
		Parts:     []a2a.Part{a2a.TextPart(text)},
	}
}

func trimHistory(t *a2a.Task, n int) {
	if n >= 0 && len(t.History) > n {
		t.History = t.History[len(t.History)-n:]
	}
}
