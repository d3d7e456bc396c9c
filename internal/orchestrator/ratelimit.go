package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// RateLimiter throttles model calls to a fixed quota per window. The window
// is kept in session state under timer_start and request_count.
type RateLimiter struct {
	window time.Duration
	quota  int
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	// sem serializes BeforeCall so each caller sees the previous one's update.
	sem chan struct{}
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *RateLimiter) { l.now = now }
}

// WithSleep replaces the limiter's wait function. The function must return
// ctx.Err() if ctx is cancelled before d elapses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *RateLimiter) { l.sleep = sleep }
}

// WithLimiterLogger sets the limiter's logger.
func WithLimiterLogger(logger *zap.Logger) LimiterOption {
	return func(l *RateLimiter) { l.logger = logger }
}

// NewRateLimiter creates a limiter admitting quota calls per window.
func NewRateLimiter(window time.Duration, quota int, opts ...LimiterOption) *RateLimiter {
	l := &RateLimiter{
		window: window,
		quota:  quota,
		now:    time.Now,
		sleep:  sleepContext,
		logger: zap.NewNop(),
		sem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BeforeCall runs before every model call. It replaces empty text parts in
// req with a single space, counts the call against the window in st and, once
// the quota is exceeded, waits for the window to end before resetting it.
// Cancelling ctx during the wait returns ctx.Err() and leaves the window
// unchanged.
func (l *RateLimiter) BeforeCall(ctx context.Context, st *State, req *llm.Request) error {
	normalizeEmptyText(req)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	now := l.now()
	start, ok := st.Get(KeyTimerStart)
	startTime, isTime := start.(time.Time)
	if !ok || !isTime {
		st.Set(KeyTimerStart, now)
		st.Set(KeyRequestCount, 1)
		l.logger.Debug("rate limit window started", zap.Int("count", 1))
		return nil
	}

	count := 1
	if v, ok := st.Get(KeyRequestCount); ok {
		if n, ok := v.(int); ok {
			count = n + 1
		}
	}
	elapsed := now.Sub(startTime)

	l.logger.Debug("rate limit check",
		zap.Int("count", count),
		zap.Duration("elapsed", elapsed))

	if count <= l.quota {
		st.Set(KeyRequestCount, count)
		return nil
	}

	delay := l.window - elapsed + time.Second
	if delay > 0 {
		l.logger.Debug("rate limit hit, waiting", zap.Duration("delay", delay))
		rateLimitDelays.Inc()
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
		rateLimitDelaySeconds.Observe(delay.Seconds())
	}

	st.Set(KeyTimerStart, l.now())
	st.Set(KeyRequestCount, 1)
	return nil
}

func normalizeEmptyText(req *llm.Request) {
	if req == nil {
		return
	}
	for i := range req.Contents {
		parts := req.Contents[i].Parts
		for j := range parts {
			if parts[j].IsText() && parts[j].Text == "" {
				parts[j].Text = " "
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time interface check.
var _ llm.Model = (*limitedModel)(nil)

// limitedModel gates every call to the wrapped model through a session's
// rate limiter.
type limitedModel struct {
	model   llm.Model
	limiter *RateLimiter
	state   *State
}

func (m *limitedModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := m.limiter.BeforeCall(ctx, m.state, req); err != nil {
		return nil, err
	}
	return m.model.Generate(ctx, req)
}
