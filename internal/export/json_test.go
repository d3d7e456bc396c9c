package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/evalbuilder/internal/orchestrator"
)

var exportTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func awaitingSnapshot() map[string]any {
	return map[string]any{
		orchestrator.KeyUserRequest:   "quiz about fractions",
		orchestrator.KeyEvalConfig:    `{"theme":"light","sandboxEnabled":true,"maxIterations":3}`,
		orchestrator.KeyConceptOutput: "C1",
		orchestrator.KeyDesignOutput:  "D1",
		orchestrator.KeyRequestCount:  2,
	}
}

func TestBuild_Awaiting(t *testing.T) {
	exp := Build("s1", awaitingSnapshot(), "design", exportTime)

	assert.Equal(t, "s1", exp.SessionID)
	assert.Equal(t, "2026-03-01T09:30:00Z", exp.ExportedAt)
	assert.Equal(t, "quiz about fractions", exp.Request)
	require.NotNil(t, exp.EvalConfig)
	assert.Equal(t, orchestrator.DefaultEvalConfig, *exp.EvalConfig)
	assert.Empty(t, exp.FinalOutput)

	want := []StageExport{
		{Stage: 0, Name: "Concept", Status: "complete", Output: "C1"},
		{Stage: 1, Name: "Design", Status: "awaiting-confirmation", Output: "D1"},
		{Stage: 2, Name: "Build", Status: "pending"},
		{Stage: 3, Name: "Review", Status: "pending"},
		{Stage: 4, Name: "Polish", Status: "pending"},
	}
	if diff := cmp.Diff(want, exp.Stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "design", exp.Awaiting())
}

func TestBuild_Done(t *testing.T) {
	snap := map[string]any{}
	for _, stage := range orchestrator.Stages {
		snap[stage.Spec().OutputKey] = stage.String() + " out"
	}
	exp := Build("s1", snap, "", exportTime)
	assert.Equal(t, "polish out", exp.FinalOutput)
	for _, s := range exp.Stages {
		assert.Equal(t, "complete", s.Status)
	}
	assert.Empty(t, exp.Awaiting())
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	exp := Build("s1", awaitingSnapshot(), "design", exportTime)

	require.NoError(t, WriteFile(path, exp))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	got, err := ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	snap := got.Snapshot()
	assert.Equal(t, "C1", snap[orchestrator.KeyConceptOutput])
	assert.Equal(t, "D1", snap[orchestrator.KeyDesignOutput])
	assert.NotContains(t, snap, orchestrator.KeyCodeOutput)
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFile(path, Build("s1", map[string]any{}, "", exportTime)))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadFile_Errors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadFile(path)
	assert.ErrorContains(t, err, "decode")
}
