package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	"golang.org/x/net/html"

	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// PreviewToolName is the name of the sandbox preview tool.
const PreviewToolName = "preview_in_sandbox"

// PreviewStatus is the outcome of a preview request.
type PreviewStatus string

const (
	PreviewRendered PreviewStatus = "rendered"
	PreviewError    PreviewStatus = "error"
)

// PreviewResult is the result contract of the sandbox preview tool.
type PreviewResult struct {
	Status     PreviewStatus `json:"status"`
	PreviewID  string        `json:"previewId"`
	PreviewURL string        `json:"previewUrl"`
	Error      string        `json:"error,omitempty"`
}

// Map converts the result to a tool response.
func (r PreviewResult) Map() map[string]any {
	m := map[string]any{
		"status":     string(r.Status),
		"previewId":  r.PreviewID,
		"previewUrl": r.PreviewURL,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// Preview is a rendered document.
type Preview struct {
	ID        string
	Document  string
	CreatedAt time.Time
}

// PreviewStore keeps rendered previews in memory for the lifetime of the
// process.
type PreviewStore struct {
	mu       sync.RWMutex
	previews map[string]Preview
}

// NewPreviewStore creates an empty store.
func NewPreviewStore() *PreviewStore {
	return &PreviewStore{previews: make(map[string]Preview)}
}

// Put stores a preview.
func (s *PreviewStore) Put(p Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[p.ID] = p
}

// Get returns the preview with the given id.
func (s *PreviewStore) Get(id string) (Preview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.previews[id]
	return p, ok
}

// Document returns the assembled HTML of the preview with the given id.
func (s *PreviewStore) Document(id string) (string, bool) {
	p, ok := s.Get(id)
	return p.Document, ok
}

// Len returns the number of stored previews.
func (s *PreviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.previews)
}

// Sandbox validates and packages HTML documents for preview. It never
// executes the document.
type Sandbox struct {
	store *PreviewStore
	now   func() time.Time
}

// NewSandbox creates a Sandbox that records previews in store.
func NewSandbox(store *PreviewStore) *Sandbox {
	return &Sandbox{store: store, now: time.Now}
}

// Render validates html, css and js and stores the assembled document.
func (s *Sandbox) Render(htmlSrc, css, js string) PreviewResult {
	if strings.TrimSpace(htmlSrc) == "" {
		return PreviewResult{Status: PreviewError, Error: "HTML content is required"}
	}

	scripts, err := inlineScripts(htmlSrc)
	if err != nil {
		return PreviewResult{Status: PreviewError, Error: "Invalid HTML syntax detected"}
	}
	if js != "" {
		scripts = append(scripts, js)
	}
	for _, src := range scripts {
		if !validScript(src) {
			return PreviewResult{Status: PreviewError, Error: "Invalid script syntax detected"}
		}
	}

	id := uuid.NewString()
	s.store.Put(Preview{
		ID:        id,
		Document:  assembleDocument(htmlSrc, css, js),
		CreatedAt: s.now(),
	})
	return PreviewResult{
		Status:     PreviewRendered,
		PreviewID:  id,
		PreviewURL: "/preview/" + id,
	}
}

// Tool exposes the sandbox as the preview_in_sandbox function tool.
func (s *Sandbox) Tool() Tool {
	decl := llm.FunctionDecl{
		Name:        PreviewToolName,
		Description: "Renders the generated HTML in a sandboxed preview and returns its URL",
		Parameters: map[string]string{
			"html": "Complete HTML code to preview",
			"css":  "Optional CSS styles",
			"js":   "Optional JavaScript code",
		},
		Required: []string{"html"},
	}
	return NewFunctionTool(decl, func(_ context.Context, args map[string]any) (map[string]any, error) {
		res := s.Render(StringArg(args, "html"), StringArg(args, "css"), StringArg(args, "js"))
		return res.Map(), nil
	})
}

func assembleDocument(body, css, js string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"UTF-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("  <title>Eval Preview</title>\n")
	if css != "" {
		fmt.Fprintf(&b, "  <style>%s</style>\n", css)
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n")
	if js != "" {
		fmt.Fprintf(&b, "  <script>%s</script>\n", js)
	}
	b.WriteString("</body>\n</html>")
	return b.String()
}

// inlineScripts returns the bodies of JavaScript <script> elements without a
// src attribute. Data and template blocks are skipped.
func inlineScripts(src string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var scripts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && !hasAttr(n, "src") && isJavaScript(n) {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			if strings.TrimSpace(b.String()) != "" {
				scripts = append(scripts, b.String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return scripts, nil
}

// isJavaScript reports whether a script element holds JavaScript: no type,
// a JavaScript MIME type or a module.
func isJavaScript(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "type" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(a.Val)) {
		case "", "text/javascript", "application/javascript", "module":
			return true
		default:
			return false
		}
	}
	return true
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// validScript reports whether src parses without syntax errors. The
// TypeScript grammar accepts plain JavaScript.
func validScript(src string) bool {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())); err != nil {
		return false
	}

	tree := parser.Parse([]byte(src), nil)
	if tree == nil {
		return false
	}
	defer tree.Close()

	return !tree.RootNode().HasError()
}
