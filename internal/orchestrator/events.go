package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event authors that are not sub-agents.
const (
	AuthorSystem = "system"
	AuthorUser   = "user"
)

// PartKind tags an event part.
type PartKind string

const (
	PartText            PartKind = "text"
	PartToolCallRequest PartKind = "toolCallRequest"
	PartToolCallResult  PartKind = "toolCallResult"
)

// Part is one content part of an Event. It is implemented only by TextPart,
// ToolCallRequest and ToolCallResult.
type Part interface {
	Kind() PartKind
	isPart()
}

// TextPart is plain text.
type TextPart struct {
	Text string `json:"text"`
}

// ToolCallRequest records a tool invocation.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallResult records a tool's response.
type ToolCallResult struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

func (TextPart) Kind() PartKind        { return PartText }
func (ToolCallRequest) Kind() PartKind { return PartToolCallRequest }
func (ToolCallResult) Kind() PartKind  { return PartToolCallResult }

func (TextPart) isPart()        {}
func (ToolCallRequest) isPart() {}
func (ToolCallResult) isPart()  {}

// Event is an immutable record emitted to the caller.
type Event struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Parts     []Part    `json:"parts"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(author string, parts ...Part) Event {
	return Event{
		ID:        uuid.NewString(),
		Author:    author,
		Timestamp: time.Now().UTC(),
		Parts:     parts,
	}
}

// Text concatenates the event's text parts.
func (e Event) Text() string {
	var b strings.Builder
	for _, p := range e.Parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCallRequests returns the event's tool call requests.
func (e Event) ToolCallRequests() []ToolCallRequest {
	var out []ToolCallRequest
	for _, p := range e.Parts {
		if r, ok := p.(ToolCallRequest); ok {
			out = append(out, r)
		}
	}
	return out
}

// ToolCallResults returns the event's tool call results.
func (e Event) ToolCallResults() []ToolCallResult {
	var out []ToolCallResult
	for _, p := range e.Parts {
		if r, ok := p.(ToolCallResult); ok {
			out = append(out, r)
		}
	}
	return out
}

// wirePart is the tagged JSON form of a Part.
type wirePart struct {
	Type     PartKind       `json:"type"`
	Text     string         `json:"text,omitempty"`
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// MarshalPart encodes a part in its tagged JSON form.
func MarshalPart(p Part) ([]byte, error) {
	var w wirePart
	switch v := p.(type) {
	case TextPart:
		w = wirePart{Type: PartText, Text: v.Text}
	case ToolCallRequest:
		w = wirePart{Type: PartToolCallRequest, ID: v.ID, Name: v.Name, Args: v.Args}
	case ToolCallResult:
		w = wirePart{Type: PartToolCallResult, ID: v.ID, Name: v.Name, Response: v.Response}
	default:
		return nil, fmt.Errorf("orchestrator: unknown part type %T", p)
	}
	return json.Marshal(w)
}

// UnmarshalPart decodes a tagged JSON part.
func UnmarshalPart(data []byte) (Part, error) {
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("orchestrator: decode part: %w", err)
	}
	switch w.Type {
	case PartText:
		return TextPart{Text: w.Text}, nil
	case PartToolCallRequest:
		return ToolCallRequest{ID: w.ID, Name: w.Name, Args: w.Args}, nil
	case PartToolCallResult:
		return ToolCallResult{ID: w.ID, Name: w.Name, Response: w.Response}, nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown part type %q", w.Type)
	}
}

type wireEvent struct {
	ID        string            `json:"id"`
	Author    string            `json:"author"`
	Timestamp time.Time         `json:"timestamp"`
	Parts     []json.RawMessage `json:"parts"`
}

// MarshalJSON encodes the event with tagged parts.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{ID: e.ID, Author: e.Author, Timestamp: e.Timestamp, Parts: make([]json.RawMessage, 0, len(e.Parts))}
	for _, p := range e.Parts {
		data, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		w.Parts = append(w.Parts, data)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event with tagged parts.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("orchestrator: decode event: %w", err)
	}
	parts := make([]Part, 0, len(w.Parts))
	for _, raw := range w.Parts {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	*e = Event{ID: w.ID, Author: w.Author, Timestamp: w.Timestamp, Parts: parts}
	return nil
}

// stageOutputParts builds the four-part emission for a completed stage.
func stageOutputParts(spec StageSpec, output string) []Part {
	return []Part{
		TextPart{Text: "### " + spec.DisplayName + " Output\n\n---"},
		TextPart{Text: output},
		TextPart{Text: "\n\n---"},
		TextPart{Text: spec.FeedbackPrompt},
	}
}
