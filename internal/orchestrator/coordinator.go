package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/agent"
	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// Session is one orchestration session. Its state, gate and rate limiter are
// never shared with other sessions.
type Session struct {
	ID    string
	State *State

	gate    *Gate
	limiter *RateLimiter
	model   llm.Model

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	turn   *Turn

	// running is true while a driver goroutine owns the pipeline.
	running bool

	// retryFeedback is the feedback of a rejected stage whose re-run failed.
	retryFeedback string
}

func (s *Session) currentTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLimiterOptions passes options to every session's rate limiter.
func WithLimiterOptions(opts ...LimiterOption) Option {
	return func(c *Coordinator) { c.limiterOpts = append(c.limiterOpts, opts...) }
}

// WithNow replaces the coordinator's time source for session bookkeeping.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithPolicy replaces the default policy engine.
func WithPolicy(p *PolicyEngine) Option {
	return func(c *Coordinator) { c.policy = p }
}

// Coordinator owns the sessions and drives their pipelines.
type Coordinator struct {
	cfg         Config
	model       llm.Model
	registry    *agent.Registry
	policy      *PolicyEngine
	seq         *sequencer
	logger      *zap.Logger
	now         func() time.Time
	limiterOpts []LimiterOption

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCoordinator creates a Coordinator calling model for every sub-agent in
// registry.
func NewCoordinator(cfg Config, model llm.Model, registry *agent.Registry, opts ...Option) *Coordinator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		model:    model,
		registry: registry,
		policy:   NewPolicyEngine(),
		logger:   cfg.Logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.seq = newSequencer(cfg, registry, c.policy)
	return c
}

func (c *Coordinator) newSession(id string) *Session {
	st := NewState()
	opts := append([]LimiterOption{WithLimiterLogger(c.logger.With(zap.String("session", id)))}, c.limiterOpts...)
	limiter := NewRateLimiter(c.cfg.RateWindow, c.cfg.RateQuota, opts...)
	return &Session{
		ID:      id,
		State:   st,
		gate:    NewGate(),
		limiter: limiter,
		model:   &limitedModel{model: c.model, limiter: limiter, state: st},
	}
}

// session returns the session for id, creating it when create is set.
func (c *Coordinator) session(id string, create bool) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return nil, errors.New("orchestrator: coordinator closed")
	}
	s, ok := c.sessions[id]
	if !ok {
		if !create {
			return nil, fmt.Errorf("orchestrator: session %q: %w", id, ErrSessionNotFound)
		}
		s = c.newSession(id)
		c.sessions[id] = s
	}
	return s, nil
}

// resetSession replaces a finished session with a fresh one under the same id.
func (c *Coordinator) resetSession(old *Session) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sessions[old.ID]; ok && cur != old {
		return cur
	}
	old.mu.Lock()
	if old.cancel != nil {
		old.cancel()
	}
	old.mu.Unlock()
	s := c.newSession(old.ID)
	c.sessions[old.ID] = s
	c.logger.Info("session reset after completion", zap.String("session", old.ID))
	return s
}

// SubmitMessage starts or advances the session's pipeline with the user's
// text and returns the turn's event stream.
//
// While a confirmation is pending, the message rejects the pending output
// and becomes the feedback for the re-run. Once the pipeline has produced its
// final output, a message starts a brand-new session under the same id.
func (c *Coordinator) SubmitMessage(ctx context.Context, sessionID, text string) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.session(sessionID, true)
	if err != nil {
		return nil, err
	}

	if s.gate.State() == GateAwaitingConfirmation {
		return c.resolve(s, Decision{Approved: false, Feedback: text})
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("orchestrator: session %q: %w", sessionID, ErrSessionBusy)
	}
	if Done(s.State) {
		s.mu.Unlock()
		s = c.resetSession(s)
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	Init(s.State, c.now())

	stage := CurrentStage(s.State)
	feedback := ""
	if stage == StageConcept {
		if strings.TrimSpace(text) != "" {
			s.State.Set(KeyUserRequest, text)
		} else {
			feedback = s.retryFeedback
		}
		if !s.State.Has(KeyUserRequest) {
			s.State.Set(KeyCoordinatorOutput, WelcomeMessage)
			return closedTurn(TurnIdle, NewEvent(agent.CoordinatorName, TextPart{Text: WelcomeMessage})), nil
		}
	} else {
		feedback = s.retryFeedback
		if strings.TrimSpace(text) != "" {
			feedback = text
		}
	}
	s.retryFeedback = ""

	if !Ready(stage, s.State) {
		_, err := composeInput(stage, s.State)
		return nil, err
	}

	if s.ctx == nil || s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(c.ctx)
	}
	if !c.track() {
		return nil, errors.New("orchestrator: coordinator closed")
	}
	turn := newTurn()
	s.turn = turn
	s.running = true

	go c.drive(s, stage, feedback)

	return turn, nil
}

// track registers a driver goroutine unless the coordinator is closed.
func (c *Coordinator) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	return true
}

// ResolveConfirmation answers the session's pending confirmation and returns
// the event stream of the resumed pipeline.
func (c *Coordinator) ResolveConfirmation(ctx context.Context, sessionID string, approved bool, feedback string) (*Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := c.session(sessionID, false)
	if err != nil {
		return nil, err
	}
	return c.resolve(s, Decision{Approved: approved, Feedback: feedback})
}

func (c *Coordinator) resolve(s *Session, d Decision) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.gate.Pending()
	if !ok {
		return nil, fmt.Errorf("orchestrator: session %q: %w", s.ID, ErrNoPendingConfirmation)
	}

	turn := newTurn()
	prev := s.turn
	s.turn = turn
	if err := s.gate.Resolve(d); err != nil {
		s.turn = prev
		return nil, err
	}

	decision := "approved"
	if !d.Approved {
		decision = "rejected"
	}
	confirmations.WithLabelValues(p.Stage.String(), decision).Inc()
	c.logger.Info("confirmation resolved",
		zap.String("session", s.ID),
		zap.String("stage", p.Stage.String()),
		zap.String("decision", decision))

	return turn, nil
}

// GetState returns a copy of the session's state.
func (c *Coordinator) GetState(sessionID string) (map[string]any, error) {
	s, err := c.session(sessionID, false)
	if err != nil {
		return nil, err
	}
	return s.State.Snapshot(), nil
}

// Pending returns the session's outstanding confirmation, if any.
func (c *Coordinator) Pending(sessionID string) (PendingConfirmation, bool) {
	s, err := c.session(sessionID, false)
	if err != nil {
		return PendingConfirmation{}, false
	}
	return s.gate.Pending()
}

// Sessions returns the ids of all known sessions.
func (c *Coordinator) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EndSession cancels the session's pipeline. A pending confirmation wait or
// rate-limit wait returns, the gate is back to Running and committed state is
// kept; a later SubmitMessage resumes from the first stage without output.
func (c *Coordinator) EndSession(sessionID string) error {
	s, err := c.session(sessionID, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Close cancels every session and waits for their drivers to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}

// drive runs the pipeline for s from stage until it pauses, completes,
// fails or is cancelled. It owns s.running until it returns.
func (c *Coordinator) drive(s *Session, stage Stage, feedback string) {
	defer c.wg.Done()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	log := c.logger.With(zap.String("session", s.ID))
	emit := func(ev Event) { s.currentTurn().emit(ctx, ev) }

	finish := func(r TurnResult) {
		s.mu.Lock()
		s.running = false
		t := s.turn
		s.mu.Unlock()
		t.finish(r)
	}

	for stage <= StagePolish {
		input, err := composeInput(stage, s.State)
		if err != nil {
			emit(NewEvent(AuthorSystem, TextPart{Text: err.Error()}))
			finish(TurnFailed)
			return
		}
		input = withFeedback(input, feedback)

		output, policy, err := c.seq.runStage(ctx, s.model, s.State, stage, input, emit)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("pipeline cancelled", zap.String("stage", stage.String()))
				finish(TurnCanceled)
				return
			}
			log.Warn("stage failed", zap.String("stage", stage.String()), zap.Error(err))
			s.mu.Lock()
			s.retryFeedback = feedback
			s.mu.Unlock()
			emit(NewEvent(AuthorSystem, TextPart{Text: fmt.Sprintf("Error: %v. Send a message to retry the %s stage.", err, stage)}))
			finish(TurnFailed)
			return
		}

		if policy.Outcome != OutcomeConfirm {
			stage++
			feedback = ""
			continue
		}

		pending := PendingConfirmation{
			ID:             uuid.NewString(),
			Stage:          stage,
			ToolName:       stage.Spec().AgentName,
			ProposedOutput: output,
			Reason:         policy.Reason,
			CreatedAt:      c.now(),
		}
		paused := s.currentTurn()
		d, err := s.gate.Suspend(ctx, pending, func(p PendingConfirmation) {
			paused.emit(ctx, NewEvent(agent.CoordinatorName, p.Request()))
			paused.finish(TurnAwaitingConfirmation)
		})
		if err != nil {
			s.mu.Lock()
			s.running = false
			t := s.turn
			s.mu.Unlock()
			paused.finish(TurnCanceled)
			t.finish(TurnCanceled)
			log.Info("confirmation wait ended", zap.String("stage", stage.String()), zap.Error(err))
			return
		}

		if d.Approved {
			stage++
			feedback = ""
			continue
		}
		s.State.Delete(stage.Spec().OutputKey)
		feedback = d.Feedback
	}

	emit(NewEvent(agent.CoordinatorName, TextPart{Text: CompletionMessage}))
	finish(TurnCompleted)
}
