package orchestrator

import (
	"time"

	"go.uber.org/zap"
)

// Config holds runtime configuration for a Coordinator.
type Config struct {
	// Model is the upstream model name passed on every request.
	Model string

	// RateWindow is the quota window length.
	RateWindow time.Duration

	// RateQuota is the number of model calls admitted per window.
	RateQuota int

	// MaxToolRounds bounds the model/tool exchanges within one sub-agent
	// invocation.
	MaxToolRounds int

	// Logger receives structured logs. Nil means no logging.
	Logger *zap.Logger
}

// Defaults.
const (
	DefaultModel         = "gemini-2.5-flash"
	DefaultRateWindow    = 60 * time.Second
	DefaultRateQuota     = 10
	DefaultMaxToolRounds = 4
)

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.RateQuota <= 0 {
		c.RateQuota = DefaultRateQuota
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
