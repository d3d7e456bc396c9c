// Package status derives a session's pipeline progress from its state
// snapshot.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

// StageInfo describes the completion state of a single stage.
type StageInfo struct {
	Stage     orchestrator.Stage
	Name      string // human-readable name (e.g. "Design")
	OutputKey string
	Complete  bool
	Bytes     int // length of the stored output, 0 when incomplete
}

// SessionStatus holds the progress of one session.
type SessionStatus struct {
	SessionID string
	Stages    []StageInfo
	Current   orchestrator.Stage

	// Awaiting is set when Current's output waits for a confirmation.
	Awaiting bool

	RequestCount int
	WindowStart  time.Time
}

// Done reports whether every stage is complete.
func (s SessionStatus) Done() bool {
	return s.Current == orchestrator.StageDone
}

// FromSnapshot builds a SessionStatus from a GetState snapshot. snap may
// come straight from the coordinator or from decoded JSON; awaiting names
// the stage whose output is pending confirmation, or is empty.
func FromSnapshot(sessionID string, snap map[string]any, awaiting string) SessionStatus {
	st := SessionStatus{
		SessionID:    sessionID,
		Current:      orchestrator.SnapshotStage(snap),
		RequestCount: intValue(snap[orchestrator.KeyRequestCount]),
		WindowStart:  timeValue(snap[orchestrator.KeyTimerStart]),
	}
	for _, stage := range orchestrator.Stages {
		spec := stage.Spec()
		out, ok := snap[spec.OutputKey].(string)
		st.Stages = append(st.Stages, StageInfo{
			Stage:     stage,
			Name:      spec.DisplayName,
			OutputKey: spec.OutputKey,
			Complete:  ok,
			Bytes:     len(out),
		})
	}

	// The awaited stage already has its output stored; the pipeline sits on
	// it until the decision arrives.
	if awaiting != "" {
		var stage orchestrator.Stage
		if err := stage.UnmarshalText([]byte(awaiting)); err == nil && stage <= orchestrator.StagePolish {
			st.Current = stage
			st.Awaiting = true
		}
	}
	return st
}

// PrintTable writes a one-line-per-stage summary of st to w.
func PrintTable(w io.Writer, st SessionStatus) error {
	if _, err := fmt.Fprintf(w, "Session: %s\n\n", st.SessionID); err != nil {
		return err
	}
	for _, si := range st.Stages {
		marker := "  "
		label := "pending"
		if si.Complete {
			label = fmt.Sprintf("complete, %d bytes", si.Bytes)
		}
		if si.Stage == st.Current {
			marker = "->"
			if st.Awaiting {
				label = "awaiting confirmation"
			} else {
				label = "next"
			}
		}
		if _, err := fmt.Fprintf(w, "  %s Stage %d: %-8s [%s]\n", marker, int(si.Stage), si.Name, label); err != nil {
			return err
		}
	}

	if st.Done() {
		_, err := fmt.Fprintln(w, "  All stages complete.")
		return err
	}
	if st.RequestCount > 0 {
		_, err := fmt.Fprintf(w, "\n  Model calls in current window: %d (since %s)\n",
			st.RequestCount, st.WindowStart.Format(time.RFC3339))
		return err
	}
	return nil
}

// intValue accepts the int stored in memory and the float64 or json.Number
// produced by decoding.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
