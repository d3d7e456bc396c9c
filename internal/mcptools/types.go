package mcptools

// --- MCP Tool Input/Output Types ---
// The MCP Go SDK generates each tool's JSON schema from these structs.

// SubmitMessageInput is the input for the submit_message MCP tool.
type SubmitMessageInput struct {
	SessionID string `json:"sessionId" jsonschema:"session identifier; a new session is created on first use"`
	Text      string `json:"text" jsonschema:"the user's message; empty text retries the current stage"`
}

// ResolveConfirmationInput is the input for the resolve_confirmation MCP tool.
type ResolveConfirmationInput struct {
	SessionID string `json:"sessionId" jsonschema:"session whose pending confirmation is answered"`
	Approved  bool   `json:"approved" jsonschema:"true to accept the stage output and advance"`
	Feedback  string `json:"feedback,omitempty" jsonschema:"corrective feedback for a rejected stage"`
}

// TurnOutput is the result of the submit_message and resolve_confirmation
// MCP tools.
type TurnOutput struct {
	SessionID string         `json:"sessionId"`
	Result    string         `json:"result"`
	Events    []EventOutput  `json:"events"`
	Pending   *PendingOutput `json:"pending,omitempty"`
}

// EventOutput is one turn event flattened for MCP clients.
type EventOutput struct {
	ID          string           `json:"id"`
	Author      string           `json:"author"`
	Text        string           `json:"text,omitempty"`
	ToolCalls   []ToolCallOutput `json:"toolCalls,omitempty"`
	ToolResults []ToolCallOutput `json:"toolResults,omitempty"`
}

// ToolCallOutput is a tool call request or result inside an event.
type ToolCallOutput struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// PendingOutput describes an outstanding confirmation.
type PendingOutput struct {
	ID             string `json:"id"`
	Stage          string `json:"stage"`
	ToolName       string `json:"toolName"`
	ProposedOutput string `json:"proposedOutput"`
	Reason         string `json:"reason"`
}

// GetStateInput is the input for the get_state MCP tool.
type GetStateInput struct {
	SessionID string `json:"sessionId" jsonschema:"session identifier"`
}

// GetStateOutput is the result of the get_state MCP tool.
type GetStateOutput struct {
	SessionID string         `json:"sessionId"`
	Stage     string         `json:"stage"`
	State     map[string]any `json:"state"`
	Pending   *PendingOutput `json:"pending,omitempty"`
}

// PreviewInput is the input for the preview_in_sandbox MCP tool.
type PreviewInput struct {
	HTML string `json:"html" jsonschema:"complete HTML code to preview"`
	CSS  string `json:"css,omitempty" jsonschema:"optional CSS styles"`
	JS   string `json:"js,omitempty" jsonschema:"optional JavaScript code"`
}

// PreviewOutput is the result of the preview_in_sandbox MCP tool.
type PreviewOutput struct {
	Status     string `json:"status"`
	PreviewID  string `json:"previewId,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}
