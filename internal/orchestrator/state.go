package orchestrator

import (
	"encoding/json"
	"maps"
	"sync"
	"time"
)

// DefaultEvalConfig seeds the eval_config state key.
var DefaultEvalConfig = EvalConfig{Theme: "light", SandboxEnabled: true, MaxIterations: 3}

// EvalConfig is the per-session evaluation configuration, stored in state as
// a JSON string.
type EvalConfig struct {
	Theme          string `json:"theme"`
	SandboxEnabled bool   `json:"sandboxEnabled"`
	MaxIterations  int    `json:"maxIterations"`
}

// State is a session's key-value store. Writes are last-write-wins.
type State struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewState creates an empty State.
func NewState() *State {
	return &State{m: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// GetString returns the string stored under key. A present non-string value
// reports false.
func (s *State) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Has reports whether key is present.
func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores v under key.
func (s *State) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

// SetIfAbsent stores v under key unless key is present. It reports whether
// the value was stored.
func (s *State) SetIfAbsent(key string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = v
	return true
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Snapshot returns a shallow copy of the state.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m)
}

// Init seeds eval_config and session_start when absent. Calling it again
// changes nothing.
func Init(s *State, now time.Time) {
	if !s.Has(KeyEvalConfig) {
		data, _ := json.Marshal(DefaultEvalConfig)
		s.SetIfAbsent(KeyEvalConfig, string(data))
	}
	s.SetIfAbsent(KeySessionStart, now)
}

// CurrentStage returns the first stage whose output key is absent, or
// StageDone.
func CurrentStage(s *State) Stage {
	for _, stage := range Stages {
		if !s.Has(stage.Spec().OutputKey) {
			return stage
		}
	}
	return StageDone
}

// Done reports whether the pipeline has produced its final output.
func Done(s *State) bool {
	return s.Has(KeyFinalOutput)
}

// SnapshotStage mirrors CurrentStage over a GetState snapshot.
func SnapshotStage(snap map[string]any) Stage {
	for _, stage := range Stages {
		if _, ok := snap[stage.Spec().OutputKey]; !ok {
			return stage
		}
	}
	return StageDone
}
