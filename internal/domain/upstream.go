package domain

import "fmt"

// OutputFormat constrains the upstream model to a JSON schema.
type OutputFormat struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// UpstreamRequest is one call to the Responses API.
// APIKey overrides the gateway's configured key when set.
type UpstreamRequest struct {
	APIKey string
	Model  string
	Input  string
	Tools  []ResolvedTool
	Format *OutputFormat
}

// ToolCall is a remote MCP call the upstream reported making.
type ToolCall struct {
	ID          string `json:"id,omitempty"`
	ServerLabel string `json:"server_label"`
	Name        string `json:"name"`
	Arguments   string `json:"arguments,omitempty"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ListedTools is a tools/list result the upstream performed for one server.
type ListedTools struct {
	ServerLabel string         `json:"server_label"`
	Functions   []ToolFunction `json:"functions"`
}

// UpstreamResponse is the normalized form of a Responses API reply.
type UpstreamResponse struct {
	ID          string        `json:"id,omitempty"`
	Model       string        `json:"model,omitempty"`
	Status      string        `json:"status,omitempty"`
	OutputText  string        `json:"output_text"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	ListedTools []ListedTools `json:"listed_tools,omitempty"`
}

// ErrorCategory is a machine-readable failure class.
type ErrorCategory string

const (
	CategoryInvalidInput   ErrorCategory = "invalid_input"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryToolSchema     ErrorCategory = "tool_schema"
	CategoryToolExecution  ErrorCategory = "tool_execution"
	CategorySelectionParse ErrorCategory = "selection_parse"
	CategoryTransport      ErrorCategory = "transport"
	CategoryUpstream       ErrorCategory = "upstream"
)

// UpstreamError is returned by the gateway. Category is decided once, at the
// gateway boundary, from the status code and the structured error body.
type UpstreamError struct {
	StatusCode int
	Category   ErrorCategory
	Code       string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream %s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("upstream HTTP %d (%s): %s", e.StatusCode, e.Category, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
