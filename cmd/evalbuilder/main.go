// Command evalbuilder runs the evaluation builder: an A2A/MCP server, an
// interactive terminal driver and tools to inspect sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dusk-indust/evalbuilder/internal/agent"
	"github.com/dusk-indust/evalbuilder/internal/config"
	"github.com/dusk-indust/evalbuilder/internal/llm"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

// version is set by goreleaser at build time.
var version = "dev"

var (
	verbose   bool
	configDir string

	cfg    *config.ProjectConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evalbuilder",
	Short: "Build evaluation UIs with a five-stage agent team",
	Long: `evalbuilder guides a request through five agents (concept, design,
build, review, polish). Every stage output waits for your approval; a
rejection re-runs the stage with your feedback.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configDir)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		if verbose || cfg.Verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing evalbuilder.yml")

	rootCmd.AddCommand(versionCmd, serveCmd, mcpCmd, runCmd, statusCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// builder bundles the in-process pipeline.
type builder struct {
	coord    *orchestrator.Coordinator
	previews *agent.PreviewStore
	sandbox  *agent.Sandbox
}

// newBuilder creates a coordinator backed by Gemini.
func newBuilder(ctx context.Context) (*builder, error) {
	model, err := llm.NewGemini(ctx, cfg.Gemini())
	if err != nil {
		return nil, err
	}
	previews := agent.NewPreviewStore()
	sandbox := agent.NewSandbox(previews)
	coord := orchestrator.NewCoordinator(cfg.Orchestrator(logger), model, agent.NewRegistry(sandbox))
	logger.Debug("coordinator ready",
		zap.String("app", cfg.AppName),
		zap.String("model", cfg.Model),
		zap.Bool("vertexai", cfg.Google.UseVertexAI))
	return &builder{coord: coord, previews: previews, sandbox: sandbox}, nil
}
