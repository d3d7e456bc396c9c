package orchestrator

import (
	"fmt"
	"strings"
)

// feedbackSeparator joins a stage input and the user's corrective feedback.
const feedbackSeparator = "\n\nUser feedback:\n"

// Ready reports whether every input key of stage is present in st.
func Ready(stage Stage, st *State) bool {
	_, err := composeInput(stage, st)
	return err == nil
}

// composeInput builds the stage input from its input keys. A missing or
// non-string key is a precondition failure. The Concept stage receives the
// raw user request; later stages get each input under a heading named after
// its key, in declaration order.
func composeInput(stage Stage, st *State) (string, error) {
	if stage < StageConcept || stage > StagePolish {
		return "", fmt.Errorf("orchestrator: stage %d (%s): %w", int(stage), stage, ErrStageNotReady)
	}
	spec := stage.Spec()

	values := make([]string, 0, len(spec.InputKeys))
	for _, key := range spec.InputKeys {
		v, ok := st.GetString(key)
		if !ok {
			return "", fmt.Errorf("orchestrator: stage %d (%s) requires %s: %w", int(stage), stage, key, ErrStageNotReady)
		}
		values = append(values, v)
	}

	if stage == StageConcept {
		return values[0], nil
	}

	var b strings.Builder
	for i, key := range spec.InputKeys {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", key, values[i])
	}
	return b.String(), nil
}

// withFeedback appends feedback to a stage input. Empty feedback leaves the
// input unchanged.
func withFeedback(input, feedback string) string {
	if feedback == "" {
		return input
	}
	return input + feedbackSeparator + feedback
}
