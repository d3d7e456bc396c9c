package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/evalbuilder/internal/a2a"
	"github.com/dusk-indust/evalbuilder/internal/agent"
)

func newTestA2AHandler(t *testing.T) (*A2AHandler, *harness) {
	t.Helper()
	h := newHarness(t)
	return NewA2AHandler(h.coord, zaptest.NewLogger(t)), h
}

func sendText(contextID, text string) a2a.SendMessageRequest {
	return a2a.SendMessageRequest{Message: a2a.Message{
		MessageID: a2a.NewMessageID(),
		ContextID: contextID,
		Role:      a2a.RoleUser,
		Parts:     []a2a.Part{a2a.TextPart(text)},
	}}
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var rpcErr *a2a.Error
	require.True(t, errors.As(err, &rpcErr), "want *a2a.Error, got %v", err)
	assert.Equal(t, code, rpcErr.Code)
}

func TestA2AHandler_SendMessage(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	h.model.script(agent.ConceptAgent, reply{text: "C1"})

	task, err := hd.HandleSendMessage(context.Background(), sendText("ctx-1", "quiz about fractions"))
	require.NoError(t, err)

	assert.Equal(t, "ctx-1", task.ContextID)
	assert.Equal(t, a2a.TaskStateInputRequired, task.Status.State)
	require.NotNil(t, task.Status.Message)
	require.Len(t, task.History, 5)

	first := task.History[0]
	assert.Equal(t, a2a.RoleUser, first.Role)
	assert.Equal(t, "quiz about fractions", first.Parts[0].Text)
	assert.Equal(t, task.ID, first.TaskID)

	// Tool calls travel as data parts.
	call := task.History[1]
	assert.Equal(t, a2a.RoleAgent, call.Role)
	assert.Equal(t, agent.CoordinatorName, call.Author)
	require.Len(t, call.Parts, 1)
	require.True(t, call.Parts[0].IsData())
	var raw map[string]any
	require.NoError(t, json.Unmarshal(call.Parts[0].Data, &raw))
	assert.Equal(t, "toolCallRequest", raw["type"])
	assert.Equal(t, agent.ConceptAgent, raw["name"])

	output := task.History[3]
	require.Len(t, output.Parts, 4)
	assert.Equal(t, "C1", output.Parts[1].Text)

	assert.Equal(t, "C1", h.state(t, "ctx-1")[KeyConceptOutput])
}

func TestA2AHandler_NewContextID(t *testing.T) {
	hd, _ := newTestA2AHandler(t)

	task, err := hd.HandleSendMessage(context.Background(), sendText("", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ContextID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, WelcomeMessage, task.Status.Message.Parts[0].Text)
}

func TestA2AHandler_SendMessageHistoryLength(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	h.model.script(agent.ConceptAgent, reply{text: "C1"})

	req := sendText("ctx-1", "quiz")
	n := 2
	req.Configuration = &a2a.SendMessageConfig{HistoryLength: &n}
	task, err := hd.HandleSendMessage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, task.History, 2)

	// The stored task keeps the full history.
	stored, err := hd.HandleGetTask(context.Background(), a2a.GetTaskRequest{ID: task.ID})
	require.NoError(t, err)
	assert.Len(t, stored.History, 5)
	assert.Equal(t, stored.History[3:], task.History)
}

func TestA2AHandler_RejectsAgentRole(t *testing.T) {
	hd, _ := newTestA2AHandler(t)
	req := sendText("ctx-1", "hi")
	req.Message.Role = a2a.RoleAgent

	_, err := hd.HandleSendMessage(context.Background(), req)
	requireCode(t, err, a2a.ErrCodeInvalidParams)
}

func TestA2AHandler_ResolveConfirmation(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	ctx := context.Background()

	first, err := hd.HandleSendMessage(ctx, sendText("ctx-1", "quiz"))
	require.NoError(t, err)

	_, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{
		ContextID:      "ctx-1",
		ConfirmationID: "not-the-pending-one",
		Approved:       true,
	})
	requireCode(t, err, a2a.ErrCodeProtocolViolation)

	p, ok := h.coord.Pending("ctx-1")
	require.True(t, ok)

	task, err := hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{
		ContextID:      "ctx-1",
		ConfirmationID: p.ID,
		Approved:       false,
		Feedback:       "add a timer",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, task.ID)
	assert.Equal(t, "Rejected: add a timer", task.History[0].Parts[0].Text)
	assert.Equal(t, a2a.TaskStateInputRequired, task.Status.State)

	_, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{ContextID: "nobody", Approved: true})
	requireCode(t, err, a2a.ErrCodeSessionNotFound)

	_, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{Approved: true})
	requireCode(t, err, a2a.ErrCodeInvalidParams)
}

func TestA2AHandler_GetSessionState(t *testing.T) {
	hd, _ := newTestA2AHandler(t)
	ctx := context.Background()

	_, err := hd.HandleSendMessage(ctx, sendText("ctx-1", "quiz"))
	require.NoError(t, err)
	_, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{ContextID: "ctx-1", Approved: true})
	require.NoError(t, err)

	st, err := hd.HandleGetSessionState(ctx, a2a.GetSessionStateRequest{ContextID: "ctx-1"})
	require.NoError(t, err)
	assert.Equal(t, "build", st.Stage)
	assert.Contains(t, st.State, KeyDesignOutput)

	var pending PendingConfirmation
	require.NoError(t, json.Unmarshal(st.Pending, &pending))
	assert.Equal(t, StageDesign, pending.Stage)
	assert.Equal(t, agent.DesignerAgent, pending.ToolName)
	assert.Equal(t, st.State[KeyDesignOutput], pending.ProposedOutput)

	_, err = hd.HandleGetSessionState(ctx, a2a.GetSessionStateRequest{ContextID: "nobody"})
	requireCode(t, err, a2a.ErrCodeSessionNotFound)
}

func TestA2AHandler_ProtocolViolationMapsCode(t *testing.T) {
	hd, _ := newTestA2AHandler(t)
	ctx := context.Background()

	_, err := hd.HandleSendMessage(ctx, sendText("ctx-1", ""))
	require.NoError(t, err)

	_, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{ContextID: "ctx-1", Approved: true})
	requireCode(t, err, a2a.ErrCodeProtocolViolation)
}

func TestA2AHandler_TasksAndCancel(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	ctx := context.Background()

	task, err := hd.HandleSendMessage(ctx, sendText("ctx-1", "quiz"))
	require.NoError(t, err)

	n := 1
	got, err := hd.HandleGetTask(ctx, a2a.GetTaskRequest{ID: task.ID, HistoryLength: &n})
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, ConfirmationToolName, mustPart(t, got.History[0]).(ToolCallRequest).Name)

	list, err := hd.HandleListTasks(ctx, a2a.ListTasksRequest{ContextID: "ctx-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalSize)

	canceled, err := hd.HandleCancelTask(ctx, a2a.CancelTaskRequest{ID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)

	require.Eventually(t, func() bool {
		_, ok := h.coord.Pending("ctx-1")
		return !ok
	}, defaultWait, pollInterval)
	assert.Contains(t, h.state(t, "ctx-1"), KeyConceptOutput)

	_, err = hd.HandleCancelTask(ctx, a2a.CancelTaskRequest{ID: task.ID})
	requireCode(t, err, a2a.ErrCodeTaskNotCancelable)

	_, err = hd.HandleGetTask(ctx, a2a.GetTaskRequest{ID: "missing"})
	requireCode(t, err, a2a.ErrCodeTaskNotFound)
}

func TestA2AHandler_CompletedTaskCarriesFinalOutput(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	ctx := context.Background()
	h.model.script(agent.PolisherAgent, reply{text: "<html>final</html>"})

	_, err := hd.HandleSendMessage(ctx, sendText("ctx-1", "quiz"))
	require.NoError(t, err)
	var last *a2a.Task
	for range 5 {
		last, err = hd.HandleResolveConfirmation(ctx, a2a.ResolveConfirmationRequest{ContextID: "ctx-1", Approved: true})
		require.NoError(t, err)
	}
	assert.Equal(t, a2a.TaskStateCompleted, last.Status.State)
	require.Len(t, last.Artifacts, 1)
	assert.Equal(t, KeyFinalOutput, last.Artifacts[0].Name)
	assert.Equal(t, "<html>final</html>", last.Artifacts[0].Parts[0].Text)

	list, err := hd.HandleListTasks(ctx, a2a.ListTasksRequest{ContextID: "ctx-1"})
	require.NoError(t, err)
	for _, task := range list.Tasks {
		assert.Empty(t, task.Artifacts)
	}
}

func TestA2AHandler_StreamMessage(t *testing.T) {
	hd, _ := newTestA2AHandler(t)

	var events []a2a.StreamEvent
	err := hd.HandleStreamMessage(context.Background(), sendText("ctx-1", "quiz"), func(ev a2a.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 3)
	require.NotNil(t, events[0].Task)
	assert.Equal(t, a2a.TaskStateWorking, events[0].Task.Status.State)
	for _, ev := range events[1 : len(events)-1] {
		require.NotNil(t, ev.Message)
		assert.Equal(t, events[0].Task.ID, ev.Message.TaskID)
	}
	last := events[len(events)-1].StatusUpdate
	require.NotNil(t, last)
	assert.Equal(t, a2a.TaskStateInputRequired, last.Status.State)
	assert.Equal(t, "ctx-1", last.ContextID)
}

func TestA2AHandler_StreamSendFailure(t *testing.T) {
	hd, h := newTestA2AHandler(t)
	boom := errors.New("client went away")

	err := hd.HandleStreamMessage(context.Background(), sendText("ctx-1", "quiz"), func(a2a.StreamEvent) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The pipeline still pauses for confirmation.
	require.Eventually(t, func() bool {
		_, ok := h.coord.Pending("ctx-1")
		return ok
	}, defaultWait, pollInterval)
}

func TestEventMessageRoundTrip(t *testing.T) {
	ev := NewEvent(agent.BuilderAgent,
		TextPart{Text: "checking"},
		ToolCallRequest{ID: "c1", Name: agent.PreviewToolName, Args: map[string]any{"html": "<p>1</p>"}},
		ToolCallResult{ID: "c1", Name: agent.PreviewToolName, Response: map[string]any{"status": "rendered"}},
	)

	msg, err := EventToMessage(ev, "ctx-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.RoleAgent, msg.Role)
	assert.Equal(t, "ctx-1", msg.ContextID)
	assert.False(t, msg.Parts[0].IsData())
	assert.True(t, msg.Parts[1].IsData())
	assert.Equal(t, "application/json", msg.Parts[2].MediaType)

	back, err := MessageToEvent(msg)
	require.NoError(t, err)
	if diff := cmp.Diff(ev, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	user, err := EventToMessage(NewEvent(AuthorUser, TextPart{Text: "hi"}), "ctx-1", "task-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.RoleUser, user.Role)
}

func TestTaskState(t *testing.T) {
	tests := map[TurnResult]a2a.TaskState{
		TurnAwaitingConfirmation: a2a.TaskStateInputRequired,
		TurnCompleted:            a2a.TaskStateCompleted,
		TurnIdle:                 a2a.TaskStateCompleted,
		TurnFailed:               a2a.TaskStateFailed,
		TurnCanceled:             a2a.TaskStateCanceled,
		TurnRunning:              a2a.TaskStateWorking,
	}
	for r, want := range tests {
		assert.Equal(t, want, taskState(r), r.String())
	}
}

func mustPart(t *testing.T, msg a2a.Message) Part {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	require.True(t, msg.Parts[0].IsData())
	p, err := UnmarshalPart(msg.Parts[0].Data)
	require.NoError(t, err)
	return p
}
