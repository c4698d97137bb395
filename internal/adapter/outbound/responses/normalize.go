package responses

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

type wireResponse struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	OutputText string     `json:"output_text"`
	Output     []wireItem `json:"output"`
	Error      *wireError `json:"error"`
}

type wireItem struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	ServerLabel string           `json:"server_label"`
	Name        string           `json:"name"`
	Arguments   json.RawMessage  `json:"arguments"`
	Output      json.RawMessage  `json:"output"`
	Error       json.RawMessage  `json:"error"`
	Content     []wireContent    `json:"content"`
	Tools       []wireListedTool `json:"tools"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireListedTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// Normalize converts a Responses API reply into the shape the rest of the
// system consumes. Text comes from output_text when present, otherwise from
// message content parts. mcp_call items become ToolCalls and mcp_list_tools
// items become ListedTools. A reply with status "failed" yields an
// *domain.UpstreamError.
func Normalize(raw []byte, withTools bool) (*domain.UpstreamResponse, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	if wire.Status == "failed" && wire.Error != nil {
		code := rawText(wire.Error.Code)
		return nil, &domain.UpstreamError{
			Category: Classify(0, code+" "+wire.Error.Type, wire.Error.Message, withTools),
			Code:     code,
			Message:  wire.Error.Message,
		}
	}

	out := &domain.UpstreamResponse{
		ID:         wire.ID,
		Model:      wire.Model,
		Status:     wire.Status,
		OutputText: wire.OutputText,
	}
	var text []string
	for _, item := range wire.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				if (c.Type == "output_text" || c.Type == "text") && c.Text != "" {
					text = append(text, c.Text)
				}
			}
		case "mcp_call":
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:          item.ID,
				ServerLabel: item.ServerLabel,
				Name:        item.Name,
				Arguments:   rawText(item.Arguments),
				Output:      rawText(item.Output),
				Error:       rawText(item.Error),
			})
		case "mcp_list_tools":
			listed := domain.ListedTools{ServerLabel: item.ServerLabel, Functions: []domain.ToolFunction{}}
			for _, t := range item.Tools {
				listed.Functions = append(listed.Functions, domain.ToolFunction{
					Name:        t.Name,
					Description: t.Description,
					InputSchema: t.InputSchema,
				})
			}
			out.ListedTools = append(out.ListedTools, listed)
		}
	}
	if out.OutputText == "" {
		out.OutputText = strings.Join(text, "\n")
	}
	return out, nil
}

// errorFromBody builds the typed failure for a non-2xx reply. The body may be
// {"error": {...}}, {"error": "..."}, or anything else.
func errorFromBody(status int, raw []byte, withTools bool) *domain.UpstreamError {
	var (
		code    string
		message string
	)
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 {
		var we wireError
		if err := json.Unmarshal(env.Error, &we); err == nil {
			code = strings.TrimSpace(rawText(we.Code) + " " + we.Type)
			message = we.Message
		} else {
			message = rawText(env.Error)
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.UpstreamError{
		StatusCode: status,
		Category:   Classify(status, code, message, withTools),
		Code:       code,
		Message:    message,
	}
}

var schemaSignatures = []string{
	"schema",
	"validation",
	"invalid argument",
	"invalid_argument",
	"invalid params",
	"parameter",
	"-32602",
}

// Classify decides the failure category from the status code and the
// structured error fields. Tool categories only apply when tools were sent.
func Classify(status int, code, message string, withTools bool) domain.ErrorCategory {
	text := strings.ToLower(code + " " + message)
	mentionsTool := strings.Contains(text, "mcp") || strings.Contains(text, "tool")
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(text, "invalid_api_key") || strings.Contains(text, "invalid api key"):
		return domain.CategoryAuthentication
	case withTools && (status == http.StatusBadRequest || status == 0) && containsAny(text, schemaSignatures):
		return domain.CategoryToolSchema
	case withTools && mentionsTool && (status == 0 || status >= 500 || status == http.StatusFailedDependency):
		return domain.CategoryToolExecution
	default:
		return domain.CategoryUpstream
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rawText renders a field that may be a JSON string, another JSON value, or null.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		return compact.String()
	}
	return string(raw)
}
