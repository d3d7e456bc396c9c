package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/evalbuilder/internal/a2a"
	"github.com/dusk-indust/evalbuilder/internal/mcptools"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

var (
	serveListen    string
	serveMCPListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the builder over A2A JSON-RPC (and optionally MCP over HTTP)",
	Long: `Starts the A2A server: JSON-RPC and SSE on POST /, the agent card on
/.well-known/agent-card.json, sandbox previews on /preview/{id}, Prometheus
metrics on /metrics and a health check on /healthz.

With --mcp-listen the MCP tools are also served over streamable HTTP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "A2A listen address (default from config, 127.0.0.1:9200)")
	serveCmd.Flags().StringVar(&serveMCPListen, "mcp-listen", "", "also serve MCP over streamable HTTP on this address")
}

func agentCard(url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:        cfg.AgentName,
		Description: "Builds evaluation UIs with a five-stage agent team: concept, design, build, review and polish. Each stage output waits for user confirmation.",
		Version:     version,
		Interfaces: []a2a.AgentInterface{{
			URL:             url,
			ProtocolBinding: "JSONRPC",
			ProtocolVersion: "1.0",
		}},
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain", "application/json", "text/html"},
		Skills: []a2a.AgentSkill{{
			ID:          "build-eval",
			Name:        "Build evaluation UI",
			Description: "Turns a description of an evaluation into a reviewed, polished single-page HTML UI",
			Tags:        []string{"eval", "ui", "html"},
			Examples:    []string{"A 10-question quiz about fractions for 5th graders"},
		}},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	addr := serveListen
	if addr == "" {
		addr = cfg.Listen
	}

	b, err := newBuilder(ctx)
	if err != nil {
		return err
	}
	defer b.coord.Close()

	server := a2a.NewServer(agentCard("http://"+addr+"/"),
		orchestrator.NewA2AHandler(b.coord, logger.Named("a2a")),
		a2a.WithPreviews(b.previews),
		a2a.WithMetricsHandler(promhttp.Handler()),
		a2a.WithServerLogger(logger.Named("http")),
		a2a.WithRequestLimit(cfg.HTTPRequestsPerMinute, time.Minute),
	)
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	if serveMCPListen != "" {
		mcpServer := mcptools.NewMCPServer(mcptools.NewService(b.coord, b.sandbox, logger.Named("mcp")))
		g.Go(func() error {
			return mcptools.RunHTTP(gctx, mcpServer, serveMCPListen, logger.Named("mcp"))
		})
	}

	err = g.Wait()
	logger.Info("shutting down", zap.Strings("sessions", b.coord.Sessions()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the builder's MCP tools on stdin/stdout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := newBuilder(cmd.Context())
		if err != nil {
			return err
		}
		defer b.coord.Close()

		server := mcptools.NewMCPServer(mcptools.NewService(b.coord, b.sandbox, logger.Named("mcp")))
		return mcptools.RunStdio(cmd.Context(), server)
	},
}
