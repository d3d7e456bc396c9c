package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StageAgents(t *testing.T) {
	reg := NewRegistry(NewSandbox(NewPreviewStore()))

	want := []struct {
		name      string
		outputKey string
		search    bool
		tools     int
	}{
		{ConceptAgent, "concept_output", true, 0},
		{DesignerAgent, "design_output", true, 0},
		{BuilderAgent, "code_output", true, 1},
		{ReviewerAgent, "review_output", false, 0},
		{PolisherAgent, "final_output", false, 0},
	}

	require.Equal(t, []string{ConceptAgent, DesignerAgent, BuilderAgent, ReviewerAgent, PolisherAgent}, reg.Names())

	for _, w := range want {
		t.Run(w.name, func(t *testing.T) {
			a, err := reg.Lookup(w.name)
			require.NoError(t, err)
			assert.Equal(t, w.outputKey, a.OutputKey)
			assert.Equal(t, w.search, a.GoogleSearch)
			assert.Len(t, a.Tools, w.tools)
			assert.NotEmpty(t, a.Instruction)
			assert.Contains(t, a.Instruction, "Current session context")
		})
	}
}

func TestRegistry_BuilderWithoutSandbox(t *testing.T) {
	reg := NewRegistry(nil)
	a, err := reg.Lookup(BuilderAgent)
	require.NoError(t, err)
	assert.Empty(t, a.Tools)
	assert.Nil(t, a.FunctionDecls())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg := NewRegistry(nil)
	a, err := reg.Lookup("nonexistent")
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "nonexistent")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&SubAgent{Name: ConceptAgent, OutputKey: "concept_output", Instruction: "custom"})

	a, err := reg.Lookup(ConceptAgent)
	require.NoError(t, err)
	assert.Equal(t, "custom", a.Instruction)
	assert.Len(t, reg.Names(), 5)
}
