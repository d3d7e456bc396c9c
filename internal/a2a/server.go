package a2a

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler processes incoming A2A requests for the evaluation builder.
type Handler interface {
	// HandleSendMessage runs one turn for the message's context and returns
	// the turn's task.
	HandleSendMessage(ctx context.Context, req SendMessageRequest) (*Task, error)

	// HandleStreamMessage runs one turn and calls send for every event as it
	// is produced. It returns when the turn ends or send fails.
	HandleStreamMessage(ctx context.Context, req SendMessageRequest, send func(StreamEvent) error) error

	// HandleResolveConfirmation answers a pending confirmation and returns
	// the resumed turn's task.
	HandleResolveConfirmation(ctx context.Context, req ResolveConfirmationRequest) (*Task, error)

	// HandleGetSessionState returns a session's state snapshot.
	HandleGetSessionState(ctx context.Context, req GetSessionStateRequest) (*SessionState, error)

	// HandleGetTask returns the current state of a task.
	HandleGetTask(ctx context.Context, req GetTaskRequest) (*Task, error)

	// HandleListTasks returns tasks matching the filter.
	HandleListTasks(ctx context.Context, req ListTasksRequest) (*ListTasksResponse, error)

	// HandleCancelTask cancels a task and ends its session.
	HandleCancelTask(ctx context.Context, req CancelTaskRequest) (*Task, error)
}

// PreviewSource serves rendered sandbox previews by id.
type PreviewSource interface {
	Document(id string) (string, bool)
}

// Server is the HTTP server that exposes the evaluation builder over A2A.
type Server struct {
	card     AgentCard
	handler  Handler
	previews PreviewSource
	metrics  http.Handler
	logger   *zap.Logger

	rateLimit  int
	rateWindow time.Duration

	http *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPreviews serves previews from src at /preview/{id}.
func WithPreviews(src PreviewSource) ServerOption {
	return func(s *Server) { s.previews = src }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRequestLimit limits each client IP to n requests per window. n <= 0
// disables limiting.
func WithRequestLimit(n int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

// Default inbound request limit.
const (
	DefaultRequestLimit  = 120
	DefaultRequestWindow = time.Minute
)

// NewServer creates an A2A server for the given agent.
func NewServer(card AgentCard, handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		card:       card,
		handler:    handler,
		logger:     zap.NewNop(),
		rateLimit:  DefaultRequestLimit,
		rateWindow: DefaultRequestWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
