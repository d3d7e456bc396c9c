package a2a

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out reading events")
		}
	}
}

func TestSSEWriter_Format(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewSSEWriter(rec)
	sw.Init()

	require.NoError(t, sw.WriteEvent(StreamEvent{Message: &Message{MessageID: "m1", Role: RoleAgent, Parts: []Part{TextPart("hi")}}}))
	require.NoError(t, sw.WriteError(errors.New("stage failed")))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "data: {"))
	assert.Contains(t, frames[0], `"messageId":"m1"`)
	assert.Equal(t, `data: {"error":"stage failed"}`, frames[1])
}

func TestReadEvents_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sw := NewSSEWriter(w)
		sw.Init()
		_ = sw.WriteEvent(StreamEvent{Task: &Task{ID: "t1", ContextID: "s1", Status: TaskStatus{State: TaskStateWorking}}})
		_ = sw.WriteEvent(StreamEvent{Message: &Message{MessageID: "m1", Role: RoleAgent, Parts: []Part{TextPart(strings.Repeat("x", 200_000))}}})
		_ = sw.WriteEvent(StreamEvent{StatusUpdate: &TaskStatusUpdateEvent{TaskID: "t1", ContextID: "s1", Status: TaskStatus{State: TaskStateInputRequired}}})
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	events := collect(t, ReadEvents(context.Background(), resp.Body))
	require.Len(t, events, 3)
	assert.Equal(t, "t1", events[0].Task.ID)
	assert.Len(t, events[1].Message.Parts[0].Text, 200_000)
	assert.Equal(t, TaskStateInputRequired, events[2].StatusUpdate.Status.State)
	for _, ev := range events {
		assert.NoError(t, ev.Err)
	}
}

func TestReadEvents_ErrorFrame(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"error\":\"boom\"}\n\n"))
	events := collect(t, ReadEvents(context.Background(), body))
	require.Len(t, events, 1)
	assert.ErrorContains(t, events[0].Err, "boom")
}

func TestReadEvents_MalformedContinues(t *testing.T) {
	raw := "data: {not json}\n\n" +
		": keepalive\n" +
		"event: ignored\n" +
		"data:{\"task\":{\"id\":\"t2\",\"contextId\":\"s\",\"status\":{\"state\":\"completed\",\"timestamp\":\"2026-01-01T00:00:00Z\"}}}\n\n"
	events := collect(t, ReadEvents(context.Background(), io.NopCloser(strings.NewReader(raw))))
	require.Len(t, events, 2)
	assert.ErrorContains(t, events[0].Err, "unmarshal")
	require.NotNil(t, events[1].Task)
	assert.Equal(t, "t2", events[1].Task.ID)
}

func TestReadEvents_MultiLineData(t *testing.T) {
	raw := "data: {\"message\":\n" +
		"data: {\"messageId\":\"m1\",\"role\":\"agent\",\"parts\":[]}}\n\n"
	events := collect(t, ReadEvents(context.Background(), io.NopCloser(strings.NewReader(raw))))
	require.Len(t, events, 1)
	require.NoError(t, events[0].Err)
	assert.Equal(t, "m1", events[0].Message.MessageID)
}

func TestReadEvents_ContextCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := ReadEvents(ctx, pr)

	go func() {
		_, _ = pw.Write([]byte("data: {\"task\":{\"id\":\"t1\",\"contextId\":\"s\",\"status\":{\"state\":\"working\",\"timestamp\":\"2026-01-01T00:00:00Z\"}}}\n\n"))
	}()
	ev := <-ch
	require.NotNil(t, ev.Task)

	cancel()
	_ = pw.Close()
	_ = collect(t, ch)
}
