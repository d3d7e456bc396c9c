package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(requestLimit(s.rateLimit, s.rateWindow))
		}
		r.Get("/.well-known/agent-card.json", s.handleAgentCard)
		if s.previews != nil {
			r.Get("/preview/{id}", s.handlePreview)
		}
		r.Post("/", s.handleJSONRPC)
	})
	return r
}

func requestLimit(n int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		n,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}

// Start listens on addr and serves in a background goroutine. It returns
// once the listener is bound.
func (s *Server) Start(_ context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("a2a: listen %s: %w", addr, err)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("a2a server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("a2a server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handleAgentCard serves the agent card as JSON at the well-known endpoint.
func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.card); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handlePreview serves a rendered sandbox preview document.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.previews.Document(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
	_, _ = w.Write([]byte(doc))
}

// handleJSONRPC processes incoming JSON-RPC 2.0 requests and dispatches them
// to the appropriate handler method.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, ErrCodeParse, "Parse error: "+err.Error())
		return
	}
	if req.JSONRPC != JSONRPCVersion {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidRequest, "Invalid request: jsonrpc must be \"2.0\"")
		return
	}

	ctx := r.Context()

	switch req.Method {
	case MethodSendMessage:
		dispatch(ctx, w, &req, s.handler.HandleSendMessage)
	case MethodStreamMessage:
		s.dispatchStreamMessage(ctx, w, &req)
	case MethodResolveConfirmation:
		dispatch(ctx, w, &req, s.handler.HandleResolveConfirmation)
	case MethodSessionState:
		dispatch(ctx, w, &req, s.handler.HandleGetSessionState)
	case MethodGetTask:
		dispatch(ctx, w, &req, s.handler.HandleGetTask)
	case MethodListTasks:
		dispatch(ctx, w, &req, s.handler.HandleListTasks)
	case MethodCancelTask:
		dispatch(ctx, w, &req, s.handler.HandleCancelTask)
	default:
		writeJSONRPCError(w, req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

// dispatch unmarshals params into P and calls fn.
func dispatch[P, R any](ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest, fn func(context.Context, P) (R, error)) {
	var params P
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	result, err := fn(ctx, params)
	if err != nil {
		writeHandlerError(w, req.ID, err)
		return
	}

	writeJSONRPCResult(w, req.ID, result)
}

// dispatchStreamMessage answers message/stream with an SSE stream. Errors
// before the first event are reported as a JSON-RPC error; later errors end
// the stream with an error frame.
func (s *Server) dispatchStreamMessage(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	var params SendMessageRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, ErrCodeInvalidParams, "Invalid params: "+err.Error())
		return
	}

	sw := NewSSEWriter(w)
	started := false
	err := s.handler.HandleStreamMessage(ctx, params, func(ev StreamEvent) error {
		if !started {
			sw.Init()
			started = true
		}
		return sw.WriteEvent(ev)
	})
	if err == nil {
		if !started {
			sw.Init()
		}
		return
	}
	if !started {
		writeHandlerError(w, req.ID, err)
		return
	}
	s.logger.Warn("stream ended with error", zap.Error(err))
	_ = sw.WriteError(err)
}

// writeHandlerError maps a handler error to a JSON-RPC error response.
func writeHandlerError(w http.ResponseWriter, id any, err error) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		writeJSONRPCError(w, id, rpcErr.Code, rpcErr.Message)
		return
	}
	writeJSONRPCError(w, id, ErrCodeInternal, err.Error())
}

// writeJSONRPCResult writes a successful JSON-RPC response.
func writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, id, ErrCodeInternal, "Failed to marshal result: "+err.Error())
		return
	}

	resp := JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  data,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSONRPCError writes a JSON-RPC error response.
func writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
