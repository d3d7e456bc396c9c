// Package mcptools exposes the evaluation builder as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the four builder tools registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "evalbuilder",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_message",
		Description: "Send a user message to a build session. Starts the pipeline, retries a failed stage or, while a confirmation is pending, rejects the stage output with the message as feedback. Returns the turn's events.",
	}, svc.SubmitMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_confirmation",
		Description: "Approve or reject the stage output awaiting confirmation. Approval advances to the next stage; rejection re-runs the stage with the feedback.",
	}, svc.ResolveConfirmation)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_state",
		Description: "Return a session's state: stage outputs, rate-limit counters, the current stage and any pending confirmation.",
	}, svc.GetState)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_in_sandbox",
		Description: "Validate an HTML document (with optional CSS and JavaScript) and store it for sandboxed preview. Returns the preview URL.",
	}, svc.PreviewInSandbox)

	return server
}

// RunStdio serves the MCP tools on stdin/stdout until ctx is cancelled or
// stdin is closed.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP tools over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string, logger *zap.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mcp server shutdown", zap.Error(err))
		}
	}()

	logger.Info("mcp server listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
