package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"google.golang.org/genai"
)

// Compile-time interface check.
var _ Model = (*Gemini)(nil)

// GeminiConfig selects the Gemini backend.
type GeminiConfig struct {
	APIKey string

	// UseVertexAI selects the Vertex AI backend with Project and Location
	// instead of the Gemini API key backend.
	UseVertexAI bool
	Project     string
	Location    string
}

// Gemini implements Model using the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini model client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{}
	if cfg.UseVertexAI {
		if cfg.Project == "" {
			return nil, errors.New("llm: vertex ai backend requires a project")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		if cfg.APIKey == "" {
			return nil, errors.New("llm: GEMINI_API_KEY is required")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Generate sends req to the Gemini GenerateContent endpoint.
func (g *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents := toGenAIContents(req.Contents)
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, toGenAIConfig(req))
	if err != nil {
		return nil, fmt.Errorf("llm: generate content (%s): %w", req.Model, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("llm: generate content (%s): empty response", req.Model)
	}
	return &Response{Content: fromGenAIContent(resp.Candidates[0].Content)}, nil
}

func toGenAIConfig(req *Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	// The API rejects built-in search combined with function declarations,
	// so function tools take precedence.
	if req.GoogleSearch && len(req.Functions) == 0 {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(req.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Functions))
		for _, fn := range req.Functions {
			decls = append(decls, toGenAIDeclaration(fn))
		}
		cfg.Tools = append(cfg.Tools, &genai.Tool{FunctionDeclarations: decls})
	}
	return cfg
}

func toGenAIDeclaration(fn FunctionDecl) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(fn.Parameters))
	names := make([]string, 0, len(fn.Parameters))
	for name := range fn.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		props[name] = &genai.Schema{
			Type:        genai.TypeString,
			Description: fn.Parameters[name],
		}
	}
	return &genai.FunctionDeclaration{
		Name:        fn.Name,
		Description: fn.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   fn.Required,
		},
	}
}

func toGenAIContents(in []Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(in))
	for _, c := range in {
		parts := make([]*genai.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			parts = append(parts, toGenAIPart(p))
		}
		role := genai.Role(genai.RoleUser)
		if c.Role == RoleModel {
			role = genai.Role(genai.RoleModel)
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}

func toGenAIPart(p Part) *genai.Part {
	switch {
	case p.FunctionCall != nil:
		return &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   p.FunctionCall.ID,
			Name: p.FunctionCall.Name,
			Args: p.FunctionCall.Args,
		}}
	case p.FunctionResponse != nil:
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       p.FunctionResponse.ID,
			Name:     p.FunctionResponse.Name,
			Response: p.FunctionResponse.Response,
		}}
	default:
		return &genai.Part{Text: p.Text}
	}
}

func fromGenAIContent(c *genai.Content) Content {
	out := Content{Role: RoleModel}
	for _, p := range c.Parts {
		if p == nil {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			out.Parts = append(out.Parts, Part{FunctionCall: &FunctionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			}})
		case p.Thought:
			// Thought summaries are not part of the stage output.
		default:
			out.Parts = append(out.Parts, Part{Text: p.Text})
		}
	}
	return out
}
