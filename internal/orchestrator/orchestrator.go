// Package orchestrator implements the evaluation builder core: the stage
// sequencer, the per-session rate limiter, the confirmation gate and the
// per-turn event stream.
package orchestrator

import (
	"fmt"

	"github.com/dusk-indust/evalbuilder/internal/agent"
)

// Stage identifies a pipeline stage (0–4).
type Stage int

const (
	StageConcept Stage = 0
	StageDesign  Stage = 1
	StageBuild   Stage = 2
	StageReview  Stage = 3
	StagePolish  Stage = 4
)

// StageDone is returned by CurrentStage once every stage output exists.
const StageDone Stage = 5

func (s Stage) String() string {
	names := [...]string{
		"concept",
		"design",
		"build",
		"review",
		"polish",
		"done",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	for st := StageConcept; st <= StageDone; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown stage %q", text)
}

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageConcept, StageDesign, StageBuild, StageReview, StagePolish}

// State keys.
const (
	KeyConceptOutput     = "concept_output"
	KeyDesignOutput      = "design_output"
	KeyCodeOutput        = "code_output"
	KeyReviewOutput      = "review_output"
	KeyFinalOutput       = "final_output"
	KeyTimerStart        = "timer_start"
	KeyRequestCount      = "request_count"
	KeyEvalConfig        = "eval_config"
	KeySessionStart      = "session_start"
	KeyUserRequest       = "user_request"
	KeyCoordinatorOutput = "coordinator_output"
)

// StageSpec describes one pipeline stage.
type StageSpec struct {
	Stage       Stage
	DisplayName string

	// AgentName is the tool name under which the coordinator invokes the
	// stage's sub-agent.
	AgentName string

	// InputKeys are read, in order, to compose the stage input.
	InputKeys []string
	OutputKey string

	// FeedbackPrompt closes the stage's four-part output.
	FeedbackPrompt string
}

var stageSpecs = [...]StageSpec{
	{
		Stage:          StageConcept,
		DisplayName:    "Concept",
		AgentName:      agent.ConceptAgent,
		InputKeys:      []string{KeyUserRequest},
		OutputKey:      KeyConceptOutput,
		FeedbackPrompt: "Here is the evaluation concept. What do you think? Would you like to add or clarify anything?",
	},
	{
		Stage:          StageDesign,
		DisplayName:    "Design",
		AgentName:      agent.DesignerAgent,
		InputKeys:      []string{KeyConceptOutput},
		OutputKey:      KeyDesignOutput,
		FeedbackPrompt: "This is the UI design our Designer has created. Does this structure feel right? We can adjust anything.",
	},
	{
		Stage:          StageBuild,
		DisplayName:    "Build",
		AgentName:      agent.BuilderAgent,
		InputKeys:      []string{KeyConceptOutput, KeyDesignOutput},
		OutputKey:      KeyCodeOutput,
		FeedbackPrompt: "Here is the generated code. You can see it live in the sandbox preview below. What do you think?",
	},
	{
		Stage:          StageReview,
		DisplayName:    "Review",
		AgentName:      agent.ReviewerAgent,
		InputKeys:      []string{KeyCodeOutput, KeyConceptOutput, KeyDesignOutput},
		OutputKey:      KeyReviewOutput,
		FeedbackPrompt: "This is the reviewer's analysis. Do these suggestions seem helpful?",
	},
	{
		Stage:          StagePolish,
		DisplayName:    "Polish",
		AgentName:      agent.PolisherAgent,
		InputKeys:      []string{KeyCodeOutput, KeyReviewOutput},
		OutputKey:      KeyFinalOutput,
		FeedbackPrompt: "Here is the polished version. How do you feel about the final result?",
	},
}

// Spec returns the stage's definition. It panics for StageDone and
// out-of-range values.
func (s Stage) Spec() StageSpec {
	return stageSpecs[s]
}

// StageForAgent returns the stage whose sub-agent is named name.
func StageForAgent(name string) (Stage, bool) {
	for _, spec := range stageSpecs {
		if spec.AgentName == name {
			return spec.Stage, true
		}
	}
	return 0, false
}

// WelcomeMessage is the coordinator's reply to an empty first message.
const WelcomeMessage = "Welcome! I'll guide you and our AI team in building an evaluation UI. What kind of evaluation would you like to create?"

// CompletionMessage closes the pipeline after the polished output is approved.
const CompletionMessage = "The evaluation UI is complete. Send a new message to start another one."
