package orchestrator

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation marks a caller action that is not valid in the
// session's current state. The offending call is rejected; session state is
// unchanged.
var ErrProtocolViolation = errors.New("protocol violation")

var (
	ErrConfirmationPending   = fmt.Errorf("%w: a confirmation is already pending", ErrProtocolViolation)
	ErrNoPendingConfirmation = fmt.Errorf("%w: no confirmation is pending", ErrProtocolViolation)
	ErrSessionBusy           = fmt.Errorf("%w: a stage is already executing", ErrProtocolViolation)
	ErrStageNotReady         = fmt.Errorf("%w: stage inputs are missing", ErrProtocolViolation)
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// UpstreamError reports a failed sub-agent invocation.
type UpstreamError struct {
	Stage Stage
	Tool  string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage (%s) failed: %v", e.Stage, e.Tool, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
