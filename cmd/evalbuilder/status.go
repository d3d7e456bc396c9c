package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/evalbuilder/internal/a2a"
	"github.com/dusk-indust/evalbuilder/internal/export"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
	"github.com/dusk-indust/evalbuilder/internal/status"
)

var (
	remoteServer  string
	remoteContext string
	statusFile    string
	exportOut     string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a session's stage progress",
	Long: `Prints one line per stage. The session is read from an export file
(--file) or fetched from a running server (--server and --context).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var (
			sessionID, awaiting string
			snap                map[string]any
		)
		switch {
		case statusFile != "":
			exp, err := export.ReadFile(statusFile)
			if err != nil {
				return err
			}
			sessionID, snap, awaiting = exp.SessionID, exp.Snapshot(), exp.Awaiting()
		case remoteServer != "" && remoteContext != "":
			st, pending, err := fetchSession(cmd.Context())
			if err != nil {
				return err
			}
			sessionID, snap = st.ContextID, st.State
			if pending != nil {
				awaiting = pending.Stage.String()
			}
		default:
			return errors.New("status: either --file or --server with --context is required")
		}
		return status.PrintTable(cmd.OutOrStdout(), status.FromSnapshot(sessionID, snap, awaiting))
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session from a running server to a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if remoteServer == "" || remoteContext == "" || exportOut == "" {
			return errors.New("export: --server, --context and --out are required")
		}
		st, pending, err := fetchSession(cmd.Context())
		if err != nil {
			return err
		}
		var awaiting string
		if pending != nil {
			awaiting = pending.Stage.String()
		}
		if err := export.WriteFile(exportOut, export.Build(st.ContextID, st.State, awaiting, time.Now())); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported session %s to %s\n", st.ContextID, exportOut)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, exportCmd} {
		c.Flags().StringVar(&remoteServer, "server", "", "A2A endpoint of a running evalbuilder server")
		c.Flags().StringVar(&remoteContext, "context", "", "session (context) id on the server")
	}
	statusCmd.Flags().StringVarP(&statusFile, "file", "f", "", "read the session from an export file")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "file to write")
}

// fetchSession reads the session state from the server and decodes its
// pending confirmation, if any.
func fetchSession(ctx context.Context) (*a2a.SessionState, *orchestrator.PendingConfirmation, error) {
	client := a2a.NewHTTPClient(a2a.WithTimeout(30 * time.Second))
	st, err := client.GetSessionState(ctx, remoteServer, a2a.GetSessionStateRequest{ContextID: remoteContext})
	if err != nil {
		return nil, nil, err
	}
	if len(st.Pending) == 0 || string(st.Pending) == "null" {
		return st, nil, nil
	}
	var p orchestrator.PendingConfirmation
	if err := json.Unmarshal(st.Pending, &p); err != nil {
		return nil, nil, fmt.Errorf("decode pending confirmation: %w", err)
	}
	return st, &p, nil
}
