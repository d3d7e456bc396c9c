// Package llm defines the provider-neutral model call boundary used by the
// sub-agents, plus a Gemini implementation.
package llm

import (
	"context"
	"strings"
)

// Role identifies the author of a Content turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one segment of a Content turn. A part with neither FunctionCall nor
// FunctionResponse set is a text part, even when Text is empty.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// IsText reports whether p is a text part.
func (p Part) IsText() bool {
	return p.FunctionCall == nil && p.FunctionResponse == nil
}

// Content is a single conversational turn.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextContent builds a single-part text turn.
func TextContent(role Role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// FunctionDecl declares a callable tool to the model. Parameters maps each
// parameter name to a short description; every parameter is a string.
type FunctionDecl struct {
	Name        string
	Description string
	Parameters  map[string]string
	Required    []string
}

// Request is a single model call.
type Request struct {
	Model             string
	SystemInstruction string
	Contents          []Content
	Functions         []FunctionDecl

	// GoogleSearch enables provider-side search grounding.
	GoogleSearch bool
}

// Response is the model's reply to a Request.
type Response struct {
	Content Content
}

// Text concatenates all text parts of the response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Content.Parts {
		if p.IsText() {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FunctionCalls returns the function calls requested in the response, in order.
func (r *Response) FunctionCalls() []FunctionCall {
	if r == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range r.Content.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

// Model generates a response for a request.
type Model interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req *Request) (*Response, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
