package a2a

import (
	"context"
	"errors"
)

// Client talks to an evaluation builder over A2A.
type Client interface {
	// SendMessage runs one turn and returns its task once the turn ends.
	SendMessage(ctx context.Context, endpoint string, req SendMessageRequest) (*Task, error)

	// StreamMessage runs one turn and delivers its events as they arrive.
	// The channel is closed when the turn ends.
	StreamMessage(ctx context.Context, endpoint string, req SendMessageRequest) (<-chan StreamEvent, error)

	// ResolveConfirmation answers a session's pending confirmation.
	ResolveConfirmation(ctx context.Context, endpoint string, req ResolveConfirmationRequest) (*Task, error)

	// GetSessionState fetches a session's state snapshot.
	GetSessionState(ctx context.Context, endpoint string, req GetSessionStateRequest) (*SessionState, error)

	GetTask(ctx context.Context, endpoint string, req GetTaskRequest) (*Task, error)
	ListTasks(ctx context.Context, endpoint string, req ListTasksRequest) (*ListTasksResponse, error)
	CancelTask(ctx context.Context, endpoint string, req CancelTaskRequest) (*Task, error)

	// DiscoverAgent fetches the Agent Card from a well-known URI.
	DiscoverAgent(ctx context.Context, baseURL string) (*AgentCard, error)
}

// StreamEvent is one event of a message/stream response.
type StreamEvent struct {
	// At most one of these is set.
	Task         *Task                  `json:"task,omitempty"`
	Message      *Message               `json:"message,omitempty"`
	StatusUpdate *TaskStatusUpdateEvent `json:"statusUpdate,omitempty"`

	// Error carries a server-side failure that ended the stream.
	Error string `json:"error,omitempty"`

	// Err is set if the stream encountered an error.
	Err error `json:"-"`
}

// streamError converts an error frame into Err.
func (e *StreamEvent) streamError() {
	if e.Error != "" && e.Err == nil {
		e.Err = errors.New("a2a: stream: " + e.Error)
	}
}
