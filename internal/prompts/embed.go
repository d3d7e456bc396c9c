// Package prompts embeds the instruction templates for the coordinator and
// the stage sub-agents. The core treats their contents as opaque text.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

// Template names.
const (
	Global      = "global"
	Coordinator = "coordinator"
	Concept     = "concept"
	Designer    = "designer"
	Builder     = "builder"
	Reviewer    = "reviewer"
	Polisher    = "polisher"
)

// Load returns the named template with surrounding whitespace trimmed.
func Load(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("prompts: load %q: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// MustLoad is like Load but panics on a missing template. The template set is
// fixed at build time, so a failure is a programming error.
func MustLoad(name string) string {
	s, err := Load(name)
	if err != nil {
		panic(err)
	}
	return s
}

// WithGlobal prepends the global instruction to an agent instruction.
func WithGlobal(instruction string) string {
	return MustLoad(Global) + "\n\n" + instruction
}
