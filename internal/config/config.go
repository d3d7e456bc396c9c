// Package config loads evalbuilder settings from evalbuilder.yml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/evalbuilder/internal/llm"
	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

// Defaults.
const (
	DefaultAppName   = "eval_builder_app"
	DefaultAgentName = "eval_builder"
	DefaultListen    = "127.0.0.1:9200"
	DefaultLocation  = "us-central1"
)

// ProjectConfig holds settings loaded from evalbuilder.yml. Zero fields take
// their defaults.
type ProjectConfig struct {
	AppName   string `yaml:"appName,omitempty"`
	AgentName string `yaml:"agentName,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Listen    string `yaml:"listen,omitempty"`
	Verbose   bool   `yaml:"verbose,omitempty"`

	RateLimit     RateLimitConfig `yaml:"rateLimit,omitempty"`
	MaxToolRounds int             `yaml:"maxToolRounds,omitempty"`

	// HTTPRequestsPerMinute limits inbound A2A requests per client IP.
	// Negative disables the limit.
	HTTPRequestsPerMinute int `yaml:"httpRequestsPerMinute,omitempty"`

	Google GoogleConfig `yaml:"google,omitempty"`
}

// RateLimitConfig is the per-session model call quota.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window,omitempty"`
	Quota  int           `yaml:"quota,omitempty"`
}

// GoogleConfig selects the model backend. Values from the environment
// override the file.
type GoogleConfig struct {
	APIKey      string `yaml:"apiKey,omitempty"`
	UseVertexAI bool   `yaml:"useVertexAI,omitempty"`
	Project     string `yaml:"project,omitempty"`
	Location    string `yaml:"location,omitempty"`
}

// Load attempts to read evalbuilder.yml or evalbuilder.yaml from the given
// directory, then applies the environment and defaults. A missing file is
// not an error.
func Load(dir string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	for _, name := range []string{"evalbuilder.yml", "evalbuilder.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *ProjectConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		c.Google.APIKey = v
	}
	if v, ok := lookup("GOOGLE_CLOUD_PROJECT"); ok && v != "" {
		c.Google.Project = v
	}
	if v, ok := lookup("GOOGLE_CLOUD_LOCATION"); ok && v != "" {
		c.Google.Location = v
	}
	if v, ok := lookup("GOOGLE_GENAI_USE_VERTEXAI"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: GOOGLE_GENAI_USE_VERTEXAI: %w", err)
		}
		c.Google.UseVertexAI = b
	}
	return nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.AgentName == "" {
		c.AgentName = DefaultAgentName
	}
	if c.Model == "" {
		c.Model = orchestrator.DefaultModel
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = orchestrator.DefaultRateWindow
	}
	if c.RateLimit.Quota <= 0 {
		c.RateLimit.Quota = orchestrator.DefaultRateQuota
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = orchestrator.DefaultMaxToolRounds
	}
	if c.HTTPRequestsPerMinute == 0 {
		c.HTTPRequestsPerMinute = 120
	}
	if c.Google.Location == "" {
		c.Google.Location = DefaultLocation
	}
}

// Orchestrator returns the coordinator configuration.
func (c *ProjectConfig) Orchestrator(logger *zap.Logger) orchestrator.Config {
	return orchestrator.Config{
		Model:         c.Model,
		RateWindow:    c.RateLimit.Window,
		RateQuota:     c.RateLimit.Quota,
		MaxToolRounds: c.MaxToolRounds,
		Logger:        logger,
	}
}

// Gemini returns the model client configuration.
func (c *ProjectConfig) Gemini() llm.GeminiConfig {
	return llm.GeminiConfig{
		APIKey:      c.Google.APIKey,
		UseVertexAI: c.Google.UseVertexAI,
		Project:     c.Google.Project,
		Location:    c.Google.Location,
	}
}
