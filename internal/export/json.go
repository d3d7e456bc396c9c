// Package export writes a session's stage outputs to a JSON document.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
	"github.com/dusk-indust/evalbuilder/internal/status"
)

// SessionExport is the top-level JSON export structure.
type SessionExport struct {
	SessionID   string                   `json:"sessionId"`
	ExportedAt  string                   `json:"exportedAt"`
	Request     string                   `json:"request,omitempty"`
	EvalConfig  *orchestrator.EvalConfig `json:"evalConfig,omitempty"`
	Stages      []StageExport            `json:"stages"`
	FinalOutput string                   `json:"finalOutput,omitempty"`
}

// StageExport describes one pipeline stage.
type StageExport struct {
	Stage  int    `json:"stage"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// Build assembles a SessionExport from a state snapshot. awaiting names the
// stage pending confirmation, if any.
func Build(sessionID string, snap map[string]any, awaiting string, now time.Time) *SessionExport {
	st := status.FromSnapshot(sessionID, snap, awaiting)

	exp := &SessionExport{
		SessionID:  sessionID,
		ExportedAt: now.UTC().Format(time.RFC3339),
	}
	exp.Request, _ = snap[orchestrator.KeyUserRequest].(string)
	if raw, ok := snap[orchestrator.KeyEvalConfig].(string); ok {
		var cfg orchestrator.EvalConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			exp.EvalConfig = &cfg
		}
	}

	for _, si := range st.Stages {
		s := "pending"
		switch {
		case si.Stage == st.Current && st.Awaiting:
			s = "awaiting-confirmation"
		case si.Complete:
			s = "complete"
		}
		out, _ := snap[si.OutputKey].(string)
		exp.Stages = append(exp.Stages, StageExport{
			Stage:  int(si.Stage),
			Name:   si.Name,
			Status: s,
			Output: out,
		})
	}

	if st.Done() {
		exp.FinalOutput, _ = snap[orchestrator.KeyFinalOutput].(string)
	}
	return exp
}

// WriteFile writes exp as indented JSON to path. The file is replaced
// atomically: readers see either the previous export or the new one.
func WriteFile(path string, exp *SessionExport) error {
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("export: create pending file: %w", err)
	}
	defer pendingFile.Cleanup()

	if _, err := pendingFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("export: atomically replace %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an export written by WriteFile.
func ReadFile(path string) (*SessionExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	var exp SessionExport
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("export: decode %s: %w", path, err)
	}
	return &exp, nil
}

// Snapshot rebuilds the stage-output part of a state snapshot from exp, so
// an export can be summarised with the status package.
func (exp *SessionExport) Snapshot() map[string]any {
	snap := make(map[string]any)
	if exp.Request != "" {
		snap[orchestrator.KeyUserRequest] = exp.Request
	}
	for _, s := range exp.Stages {
		if s.Status == "pending" {
			continue
		}
		stage := orchestrator.Stage(s.Stage)
		if stage < orchestrator.StageConcept || stage > orchestrator.StagePolish {
			continue
		}
		snap[stage.Spec().OutputKey] = s.Output
	}
	return snap
}

// Awaiting returns the name of the stage awaiting confirmation, or "".
func (exp *SessionExport) Awaiting() string {
	for _, s := range exp.Stages {
		if s.Status == "awaiting-confirmation" {
			return orchestrator.Stage(s.Stage).String()
		}
	}
	return ""
}
