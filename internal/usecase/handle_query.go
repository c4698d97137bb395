package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// DefaultPublicCandidates caps how many public registry entries are offered
// to the selection model.
const DefaultPublicCandidates = 10

// MaxCandidates caps the full candidate list sent to the selection model.
const MaxCandidates = 20

// QueryRequest is a free-form user query plus optional context.
type QueryRequest struct {
	Query        string                       `json:"query"`
	Conversation []domain.ConversationTurn    `json:"conversation,omitempty"`
	Headers      map[string]map[string]string `json:"headers,omitempty"`
	APIKey       string                       `json:"-"`
}

// ExecutionOutput is the normalized upstream result of a tool execution.
type ExecutionOutput struct {
	Text       string            `json:"text"`
	ToolCalls  []domain.ToolCall `json:"tool_calls,omitempty"`
	ResponseID string            `json:"response_id,omitempty"`
	Query      string            `json:"query"`
	Retried    bool              `json:"retried,omitempty"`
}

// QueryResponse is the caller-facing result. Exactly one of the intent flags
// is set for non-execution paths.
type QueryResponse struct {
	Intent              domain.Intent         `json:"intent"`
	Reasoning           string                `json:"reasoning,omitempty"`
	Introspection       bool                  `json:"introspection,omitempty"`
	DirectResponse      bool                  `json:"direct_response,omitempty"`
	CurlGeneration      bool                  `json:"curl_generation,omitempty"`
	Response            string                `json:"response,omitempty"`
	CurlCommand         string                `json:"curl_command,omitempty"`
	SelectedTools       []domain.SelectedTool `json:"selectedTools,omitempty"`
	ExecutionQuery      string                `json:"executionQuery,omitempty"`
	ResolvedToolConfigs []domain.ResolvedTool `json:"resolvedToolConfigs,omitempty"`
	Result              *ExecutionOutput      `json:"result,omitempty"`
	Error               *ErrorPayload         `json:"error,omitempty"`
	Warnings            []string              `json:"warnings,omitempty"`
}

// HandleQueryUseCase is the top-level pipeline: route, then dispatch on intent.
type HandleQueryUseCase struct {
	router     *Router
	selector   *SelectionEngine
	executor   *ExecuteToolsUseCase
	curl       *CurlUseCase
	introspect *IntrospectUseCase
	registry   ToolRegistry
	public     PublicRegistry
	gateway    Gateway
	model      string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// HandleQueryDeps groups the collaborators of HandleQueryUseCase.
type HandleQueryDeps struct {
	Router     *Router
	Selector   *SelectionEngine
	Executor   *ExecuteToolsUseCase
	Curl       *CurlUseCase
	Introspect *IntrospectUseCase
	Registry   ToolRegistry
	Public     PublicRegistry // optional
	Gateway    Gateway
	Model      string
	Metrics    *observability.Metrics
}

// NewHandleQueryUseCase creates the pipeline.
func NewHandleQueryUseCase(deps HandleQueryDeps, logger *slog.Logger) *HandleQueryUseCase {
	return &HandleQueryUseCase{
		router:     deps.Router,
		selector:   deps.Selector,
		executor:   deps.Executor,
		curl:       deps.Curl,
		introspect: deps.Introspect,
		registry:   deps.Registry,
		public:     deps.Public,
		gateway:    deps.Gateway,
		model:      deps.Model,
		metrics:    deps.Metrics,
		logger:     logger.With("usecase", "HandleQuery"),
	}
}

// Handle runs the pipeline. The only returned error is invalid input; every
// other failure is reported in QueryResponse.Error.
func (uc *HandleQueryUseCase) Handle(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	raw := strings.TrimSpace(req.Query)
	if raw == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	query, creds := domain.ExtractCredentials(raw)
	if len(creds) > 0 {
		uc.logger.Info("Stripped credentials from query", slog.Int("count", len(creds)))
	}
	if query == "" {
		query = raw
	}

	decision := uc.router.Route(ctx, query, req.Conversation, req.APIKey)
	uc.metrics.RoutingDecision(string(decision.Intent), IsFallback(decision))
	log := uc.logger.With(slog.String("intent", string(decision.Intent)))

	resp := &QueryResponse{Intent: decision.Intent, Reasoning: decision.Reasoning}
	switch decision.Intent {
	case domain.IntentIntrospection:
		text, err := uc.introspect.Describe(ctx)
		if err != nil {
			resp.Error = DescribeError(err)
			return resp, nil
		}
		resp.Introspection = true
		resp.Response = text

	case domain.IntentDirectResponse:
		out, err := uc.gateway.Respond(ctx, domain.UpstreamRequest{
			APIKey: req.APIKey,
			Model:  uc.model,
			Input:  decision.Prompt,
		})
		if err != nil {
			log.Error("Direct response failed", slog.Any("error", err))
			resp.Error = DescribeError(err)
			return resp, nil
		}
		resp.DirectResponse = true
		resp.Response = out.OutputText

	case domain.IntentCurlGeneration:
		selection, err := uc.selectTools(ctx, query, req.Conversation, req.APIKey)
		if err != nil {
			resp.Error = DescribeError(err)
			return resp, nil
		}
		resp.SelectedTools = selection.SelectedTools
		resp.ExecutionQuery = selection.ExecutionQuery
		example, err := uc.curl.Generate(ctx, CurlRequest{
			Tools:        selection.ToolNames(),
			Query:        selection.ExecutionQuery,
			Headers:      req.Headers,
			Conversation: req.Conversation,
		})
		if err != nil {
			resp.Error = DescribeError(err)
			return resp, nil
		}
		resp.CurlGeneration = true
		resp.CurlCommand = example.Command
		resp.ResolvedToolConfigs = example.Tools
		resp.Response = "Here is an example request that runs " + strings.Join(selection.ToolNames(), ", ") + " through the Responses API."

	default:
		selection, err := uc.selectTools(ctx, query, req.Conversation, req.APIKey)
		if err != nil {
			resp.Error = DescribeError(err)
			return resp, nil
		}
		resp.SelectedTools = selection.SelectedTools
		resp.ExecutionQuery = selection.ExecutionQuery
		uc.fillExecution(ctx, resp, ExecuteRequest{
			Tools:            strings.Join(selection.ToolNames(), ","),
			Query:            selection.ExecutionQuery,
			Headers:          req.Headers,
			Conversation:     req.Conversation,
			ExtractedHeaders: domain.CredentialHeaders(creds),
			APIKey:           req.APIKey,
		})
	}
	return resp, nil
}

// Execute runs an explicit tool batch and renders it like a routed query.
func (uc *HandleQueryUseCase) Execute(ctx context.Context, req ExecuteRequest) (*QueryResponse, error) {
	if len(SplitToolNames(req.Tools)) == 0 {
		return nil, fmt.Errorf("%w: at least one tool name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	query, creds := domain.ExtractCredentials(req.Query)
	if len(creds) > 0 {
		req.Query = query
		req.ExtractedHeaders = mergeHeaders(domain.CredentialHeaders(creds), req.ExtractedHeaders)
	}
	resp := &QueryResponse{Intent: domain.IntentToolExecution, ExecutionQuery: req.Query}
	for _, name := range SplitToolNames(req.Tools) {
		resp.SelectedTools = append(resp.SelectedTools, domain.SelectedTool{Name: name, Reason: "requested explicitly"})
	}
	uc.fillExecution(ctx, resp, req)
	return resp, nil
}

func (uc *HandleQueryUseCase) fillExecution(ctx context.Context, resp *QueryResponse, req ExecuteRequest) {
	result, err := uc.executor.Execute(ctx, req)
	if err != nil {
		resp.Error = DescribeError(err)
		return
	}
	for i, t := range result.Tools {
		resp.ResolvedToolConfigs = append(resp.ResolvedToolConfigs, RedactTool(result.Descriptors[i], t))
	}
	for i := range resp.SelectedTools {
		for _, d := range result.Descriptors {
			if d.Name == resp.SelectedTools[i].Name && resp.SelectedTools[i].RegistrySource == "" {
				resp.SelectedTools[i].RegistrySource = d.Source
			}
		}
	}
	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, w.String())
	}
	resp.Result = &ExecutionOutput{
		Text:       result.Response.OutputText,
		ToolCalls:  result.Response.ToolCalls,
		ResponseID: result.Response.ID,
		Query:      result.Query,
		Retried:    result.Retried,
	}
}

func (uc *HandleQueryUseCase) selectTools(ctx context.Context, query string, conversation []domain.ConversationTurn, apiKey string) (*domain.SelectionResult, error) {
	candidates, err := uc.Candidates(ctx, query, conversation)
	if err != nil {
		return nil, err
	}
	return uc.selector.Select(ctx, query, candidates, conversation, apiKey)
}

// Candidates gathers local, conversation-discovered, then public tools,
// without duplicate names and capped at MaxCandidates.
func (uc *HandleQueryUseCase) Candidates(ctx context.Context, query string, conversation []domain.ConversationTurn) ([]domain.ToolCandidate, error) {
	local, err := uc.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local tools: %w", err)
	}
	seen := map[string]bool{}
	var out []domain.ToolCandidate
	add := func(c domain.ToolCandidate) {
		if c.Name == "" || seen[c.Name] || len(out) >= MaxCandidates {
			return
		}
		seen[c.Name] = true
		out = append(out, c)
	}

	for _, t := range local {
		add(domain.ToolCandidate{Name: t.Name, Description: t.Description(), Source: domain.ToolSourceLocal, ServerURL: t.ServerURL})
	}
	memory := domain.ScanConversation(conversation)
	for _, srv := range memory.Servers {
		for _, name := range srv.SortedToolNames() {
			add(domain.ToolCandidate{Name: name, Description: "announced at " + srv.URL, Source: domain.ToolSourceDiscovered, ServerURL: srv.URL})
		}
	}
	if uc.public != nil {
		public, err := uc.public.Search(ctx, query, DefaultPublicCandidates)
		if err != nil {
			uc.logger.Warn("Public registry search failed, continuing without it", slog.Any("error", err))
		}
		for _, t := range public {
			add(domain.ToolCandidate{Name: t.Name, Description: t.Description(), Source: domain.ToolSourcePublic, ServerURL: t.ServerURL})
		}
	}
	return out, nil
}
