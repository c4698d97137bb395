package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// NotFoundError reports a tool name the whole resolution chain could not resolve.
type NotFoundError struct {
	ToolName string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in local registry, conversation, or public registry", e.ToolName)
}

// Is makes errors.Is(err, ErrToolNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrToolNotFound }

func (e *NotFoundError) Unwrap() error { return e.Err }

// SelectionParseError keeps the raw model reply for diagnosis.
type SelectionParseError struct {
	Raw string
	Err error
}

func (e *SelectionParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSelectionParse, e.Err)
}

func (e *SelectionParseError) Is(target error) bool { return target == ErrSelectionParse }

func (e *SelectionParseError) Unwrap() error { return e.Err }

// ExecutionError is a terminal execution failure classified for the caller.
type ExecutionError struct {
	Category    domain.ErrorCategory
	StatusCode  int
	Message     string
	Remediation string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ErrorPayload is the caller-facing rendering of any core error.
type ErrorPayload struct {
	Category    domain.ErrorCategory `json:"category"`
	Message     string               `json:"message"`
	Remediation string               `json:"remediation,omitempty"`
	RawOutput   string               `json:"raw_output,omitempty"`
	StatusCode  int                  `json:"status_code"`
}

// DescribeError maps an error from the core to its payload. Unknown errors
// become generic upstream failures with the message preserved.
func DescribeError(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	var (
		nf  *NotFoundError
		sp  *SelectionParseError
		ex  *ExecutionError
		ups *domain.UpstreamError
	)
	switch {
	case errors.As(err, &nf):
		return &ErrorPayload{
			Category:    domain.CategoryNotFound,
			Message:     nf.Error(),
			Remediation: fmt.Sprintf("Search the public catalog (GET /api/registry/search?q=%s) or pass the MCP server URL directly as the tool name.", nf.ToolName),
			StatusCode:  http.StatusNotFound,
		}
	case errors.As(err, &sp):
		return &ErrorPayload{
			Category:   domain.CategorySelectionParse,
			Message:    sp.Error(),
			RawOutput:  sp.Raw,
			StatusCode: http.StatusBadGateway,
		}
	case errors.As(err, &ex):
		return &ErrorPayload{
			Category:    ex.Category,
			Message:     ex.Message,
			Remediation: ex.Remediation,
			StatusCode:  ex.StatusCode,
		}
	case errors.Is(err, ErrInvalidInput):
		return &ErrorPayload{
			Category:   domain.CategoryInvalidInput,
			Message:    err.Error(),
			StatusCode: http.StatusBadRequest,
		}
	case errors.As(err, &ups):
		return DescribeError(classifyUpstreamError(ups, nil))
	default:
		return &ErrorPayload{
			Category:   domain.CategoryUpstream,
			Message:    err.Error(),
			StatusCode: http.StatusBadGateway,
		}
	}
}
