package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/export"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

var (
	runSession     string
	runAutoApprove bool
	runOut         string
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Drive a build session from the terminal",
	Long: `Runs the pipeline in-process. Each stage output is printed and waits for
a decision: press enter or type "y" to approve, anything else rejects the
output and re-runs the stage with your text as feedback.

With --auto-approve and a request argument the pipeline runs to completion
without prompting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBuilder(cmd.Context())
		if err != nil {
			return err
		}
		defer b.coord.Close()

		d := &driver{
			coord:       b.coord,
			sessionID:   runSession,
			autoApprove: runAutoApprove,
			in:          bufio.NewScanner(cmd.InOrStdin()),
			out:         cmd.OutOrStdout(),
			logger:      logger,
		}
		if d.sessionID == "" {
			d.sessionID = uuid.NewString()
		}
		var request string
		if len(args) == 1 {
			request = args[0]
		}

		runErr := d.run(cmd.Context(), request)
		if runOut != "" {
			if err := d.export(runOut); err != nil {
				return errors.Join(runErr, err)
			}
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "session id (default: random)")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "approve every stage output without prompting")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the session export to this file on exit")
}

// driver runs one session against a coordinator, reading decisions from in.
type driver struct {
	coord       *orchestrator.Coordinator
	sessionID   string
	autoApprove bool
	in          *bufio.Scanner
	out         io.Writer
	logger      *zap.Logger
}

func (d *driver) run(ctx context.Context, request string) error {
	text := request
	if text == "" {
		line, ok := d.prompt("you> ")
		if !ok {
			return nil
		}
		text = line
	}

	turn, err := d.coord.SubmitMessage(ctx, d.sessionID, text)
	for {
		if err != nil {
			return err
		}
		d.print(turn)

		switch turn.Result() {
		case orchestrator.TurnCompleted:
			return nil
		case orchestrator.TurnCanceled:
			return context.Canceled
		case orchestrator.TurnAwaitingConfirmation:
			p, ok := d.coord.Pending(d.sessionID)
			if !ok {
				return fmt.Errorf("session %s: confirmation vanished", d.sessionID)
			}
			if d.autoApprove {
				fmt.Fprintf(d.out, "-- approving %s output\n", p.Stage)
				turn, err = d.coord.ResolveConfirmation(ctx, d.sessionID, true, "")
				continue
			}
			line, ok := d.prompt(fmt.Sprintf("approve %s output? [Y/n or feedback]> ", p.Stage))
			if !ok {
				return nil
			}
			approved, feedback := parseDecision(line)
			turn, err = d.coord.ResolveConfirmation(ctx, d.sessionID, approved, feedback)
		case orchestrator.TurnFailed:
			if d.autoApprove {
				return fmt.Errorf("session %s: stage failed", d.sessionID)
			}
			fallthrough
		default:
			line, ok := d.prompt("you> ")
			if !ok {
				return nil
			}
			turn, err = d.coord.SubmitMessage(ctx, d.sessionID, line)
		}
	}
}

// prompt writes p and reads one line. It reports false at end of input.
func (d *driver) prompt(p string) (string, bool) {
	fmt.Fprint(d.out, p)
	if !d.in.Scan() {
		fmt.Fprintln(d.out)
		return "", false
	}
	return strings.TrimSpace(d.in.Text()), true
}

func (d *driver) print(turn *orchestrator.Turn) {
	for ev := range turn.Events() {
		for _, c := range ev.ToolCallRequests() {
			if c.Name == orchestrator.ConfirmationToolName {
				continue
			}
			fmt.Fprintf(d.out, "[%s] -> %s\n", ev.Author, c.Name)
		}
		for _, r := range ev.ToolCallResults() {
			if errText, ok := r.Response["error"].(string); ok {
				fmt.Fprintf(d.out, "[%s] <- %s: %s\n", ev.Author, r.Name, errText)
			}
		}
		if text := ev.Text(); text != "" {
			fmt.Fprintf(d.out, "[%s] %s\n", ev.Author, text)
		}
	}
	d.logger.Debug("turn finished",
		zap.String("session", d.sessionID),
		zap.Stringer("result", turn.Result()))
}

func (d *driver) export(path string) error {
	snap, err := d.coord.GetState(d.sessionID)
	if err != nil {
		return err
	}
	var awaiting string
	if p, ok := d.coord.Pending(d.sessionID); ok {
		awaiting = p.Stage.String()
	}
	if err := export.WriteFile(path, export.Build(d.sessionID, snap, awaiting, time.Now())); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Exported session %s to %s\n", d.sessionID, path)
	return nil
}

// parseDecision maps a reply to an approval decision. Empty, "y" and "yes"
// approve; "n" and "no" reject without feedback; any other text rejects with
// itself as feedback.
func parseDecision(line string) (bool, string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, ""
	case "n", "no":
		return false, ""
	default:
		return false, strings.TrimSpace(line)
	}
}
