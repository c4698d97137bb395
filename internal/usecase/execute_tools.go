package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// ExecuteRequest is one tool execution batch.
type ExecuteRequest struct {
	// Tools is a comma-separated list of tool names, URLs, or registry names.
	Tools string
	// Query is the natural-language request passed to the upstream model.
	Query string
	// Headers maps a tool key to caller-supplied headers for that tool.
	Headers map[string]map[string]string
	// Conversation is consulted by the resolution chain.
	Conversation []domain.ConversationTurn
	// ExtractedHeaders are credentials found in free text; any explicit
	// per-tool header wins over them.
	ExtractedHeaders map[string]string
	// APIKey overrides the gateway's upstream key when set.
	APIKey string
}

// CredentialWarning names a tool whose headers look unset.
type CredentialWarning struct {
	Tool    string   `json:"tool"`
	Headers []string `json:"headers"`
}

// String renders the warning for callers.
func (w CredentialWarning) String() string {
	return fmt.Sprintf("tool %q may fail: missing credentials for %s", w.Tool, strings.Join(w.Headers, ", "))
}

// ExecuteResult is a successful execution.
type ExecuteResult struct {
	Tools       []domain.ResolvedTool
	Descriptors []domain.ToolDescriptor
	Warnings    []CredentialWarning
	Response    *domain.UpstreamResponse
	Query       string
	Retried     bool
}

// ExecuteToolsUseCase drives resolution, credential checks, the upstream call,
// the single schema-mismatch retry, and failure classification.
type ExecuteToolsUseCase struct {
	chain       *ResolutionChain
	credentials *CredentialResolver
	gateway     Gateway
	cache       SchemaCache
	model       string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewExecuteToolsUseCase creates the orchestrator. cache may be nil.
func NewExecuteToolsUseCase(
	chain *ResolutionChain,
	credentials *CredentialResolver,
	gateway Gateway,
	cache SchemaCache,
	model string,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ExecuteToolsUseCase {
	return &ExecuteToolsUseCase{
		chain:       chain,
		credentials: credentials,
		gateway:     gateway,
		cache:       cache,
		model:       model,
		metrics:     metrics,
		logger:      logger.With("usecase", "ExecuteTools"),
	}
}

// SplitToolNames splits a comma-separated list, dropping blanks.
func SplitToolNames(csv string) []string {
	var names []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// Execute runs the batch. Resolution is all-or-nothing: the first name that
// cannot be resolved aborts before any upstream call.
func (uc *ExecuteToolsUseCase) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	names := SplitToolNames(req.Tools)
	query := strings.TrimSpace(req.Query)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one tool name is required", ErrInvalidInput)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	log := uc.logger.With(slog.Any("tools", names))
	log.Info("Executing tools")

	memory := domain.ScanConversation(req.Conversation)

	descriptors := make([]domain.ToolDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := uc.chain.Resolve(ctx, name, memory)
		if err != nil {
			log.Warn("Aborting batch, tool not resolved", slog.String("tool_name", name), slog.Any("error", err))
			return nil, err
		}
		descriptors = append(descriptors, *desc)
	}

	extracted := mergeHeaders(memory.CredentialHeaders(), req.ExtractedHeaders)

	result := &ExecuteResult{Descriptors: descriptors, Query: query}
	for _, desc := range descriptors {
		caller := mergeHeaders(extractedFor(desc, extracted), HeadersForTool(req.Headers, desc.Name))
		res := uc.credentials.Resolve(desc, caller)
		if len(res.MissingCredentials) > 0 {
			w := CredentialWarning{Tool: desc.Name, Headers: res.MissingCredentials}
			log.Warn("Missing credentials, proceeding anyway", slog.String("tool_name", desc.Name), slog.Any("headers", res.MissingCredentials))
			result.Warnings = append(result.Warnings, w)
		}
		result.Tools = append(result.Tools, res.Tool)
	}

	resp, err := uc.gateway.Respond(ctx, domain.UpstreamRequest{
		APIKey: req.APIKey,
		Model:  uc.model,
		Input:  query,
		Tools:  result.Tools,
	})

	var upErr *domain.UpstreamError
	if err != nil && len(result.Tools) == 1 && errors.As(err, &upErr) && upErr.Category == domain.CategoryToolSchema {
		retryQuery := simplifiedQuery(result.Tools[0].Name)
		log.Warn("Tool rejected parameters, retrying once with a simplified query",
			slog.String("retry_query", retryQuery), slog.Any("error", err))
		uc.metrics.ExecutionRetry()
		result.Retried = true
		result.Query = retryQuery
		resp, err = uc.gateway.Respond(ctx, domain.UpstreamRequest{
			APIKey: req.APIKey,
			Model:  uc.model,
			Input:  retryQuery,
			Tools:  result.Tools,
		})
	}
	if err != nil {
		classified := classifyError(err, result.Warnings)
		log.Error("Tool execution failed", slog.String("category", string(classified.Category)), slog.Any("error", err))
		return nil, classified
	}

	uc.cacheListedFunctions(log, result.Tools, resp)
	result.Response = resp
	log.Info("Tool execution succeeded", slog.Bool("retried", result.Retried), slog.Int("tool_calls", len(resp.ToolCalls)))
	return result, nil
}

// cacheListedFunctions stores tools/list results the upstream reported, so a
// later listing request for the same server skips discovery. A fresh listing
// overwrites the cached one.
func (uc *ExecuteToolsUseCase) cacheListedFunctions(log *slog.Logger, tools []domain.ResolvedTool, resp *domain.UpstreamResponse) {
	if uc.cache == nil || resp == nil {
		return
	}
	for _, listed := range resp.ListedTools {
		for _, t := range tools {
			if t.ServerLabel != listed.ServerLabel {
				continue
			}
			uc.cache.Set(t.Name, t.ServerURL, listed.Functions)
			log.Debug("Cached functions listed by upstream", slog.String("tool_name", t.Name), slog.Int("count", len(listed.Functions)))
		}
	}
}

func simplifiedQuery(toolName string) string {
	return fmt.Sprintf("Use the %s tool.", toolName)
}

var nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// HeaderKeyCandidates lists the keys tried, in order, when matching a tool
// to caller headers: exact, lowercase, alphanumerics only, last path
// segment, last dotted segment.
func HeaderKeyCandidates(toolName string) []string {
	keys := []string{
		toolName,
		strings.ToLower(toolName),
		nonAlnumRe.ReplaceAllString(toolName, ""),
	}
	if i := strings.LastIndex(toolName, "/"); i >= 0 {
		keys = append(keys, toolName[i+1:])
	}
	if i := strings.LastIndex(toolName, "."); i >= 0 {
		keys = append(keys, toolName[i+1:])
	}
	return keys
}

// HeadersForTool returns the first header map whose key matches toolName.
func HeadersForTool(all map[string]map[string]string, toolName string) map[string]string {
	if len(all) == 0 {
		return nil
	}
	for _, key := range HeaderKeyCandidates(toolName) {
		if key == "" {
			continue
		}
		if h, ok := all[key]; ok {
			return h
		}
	}
	return nil
}

// extractedFor limits free-text credentials to headers the descriptor declares.
// Descriptors without a template (URL, conversation) accept all of them.
func extractedFor(desc domain.ToolDescriptor, extracted map[string]string) map[string]string {
	if len(desc.Headers) == 0 || len(extracted) == 0 {
		return extracted
	}
	out := map[string]string{}
	for name := range desc.Headers {
		if _, v, ok := lookupFold(extracted, name); ok {
			out[name] = v
		}
	}
	return out
}

// mergeHeaders returns base overlaid with override; neither input is modified.
func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		for existing := range out {
			if existing != k && strings.EqualFold(existing, k) {
				delete(out, existing)
			}
		}
		out[k] = v
	}
	return out
}

func classifyError(err error, warnings []CredentialWarning) *ExecutionError {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) {
		return classifyUpstreamError(upErr, warnings)
	}
	return &ExecutionError{
		Category:   domain.CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Message:    err.Error(),
		Err:        err,
	}
}

// classifyUpstreamError maps the gateway's category onto caller-facing
// categories with remediation text.
func classifyUpstreamError(upErr *domain.UpstreamError, warnings []CredentialWarning) *ExecutionError {
	switch upErr.Category {
	case domain.CategoryAuthentication:
		remediation := "Check the upstream API key and the credentials configured for the selected tools."
		if len(warnings) > 0 {
			parts := make([]string, len(warnings))
			for i, w := range warnings {
				parts[i] = w.String()
			}
			remediation += " " + strings.Join(parts, "; ") + "."
		}
		return &ExecutionError{
			Category:    domain.CategoryAuthentication,
			StatusCode:  http.StatusUnauthorized,
			Message:     upErr.Message,
			Remediation: remediation,
			Err:         upErr,
		}
	case domain.CategoryToolSchema:
		return &ExecutionError{
			Category:    domain.CategoryToolSchema,
			StatusCode:  http.StatusBadRequest,
			Message:     upErr.Message,
			Remediation: "The tool was found but rejected the parameters it was called with. Rephrase the query with the details the tool needs, or list its functions to see the expected inputs.",
			Err:         upErr,
		}
	case domain.CategoryToolExecution:
		return &ExecutionError{
			Category:    domain.CategoryToolExecution,
			StatusCode:  http.StatusBadGateway,
			Message:     upErr.Message,
			Remediation: "The tool was found but failed while executing on its server. Try again later or choose a different tool.",
			Err:         upErr,
		}
	default:
		status := upErr.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		category := upErr.Category
		if category == "" {
			category = domain.CategoryUpstream
		}
		return &ExecutionError{
			Category:   category,
			StatusCode: status,
			Message:    upErr.Message,
			Err:        upErr,
		}
	}
}
