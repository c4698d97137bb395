package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/memcache"
	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

func localDeepwiki() *domain.ToolDescriptor {
	return &domain.ToolDescriptor{
		Name:            "deepwiki",
		ServerLabel:     "deepwiki",
		ServerURL:       "https://mcp.deepwiki.com/mcp",
		RequireApproval: domain.ApprovalNever,
		Meta:            &domain.ToolMeta{Description: "Ask questions about GitHub repositories.", ExampleQueries: []string{"How does golang/go schedule goroutines?"}},
		Source:          domain.ToolSourceLocal,
	}
}

type queryFixture struct {
	registry *MockToolRegistry
	public   *MockPublicRegistry
	gateway  *MockGateway
	uc       *usecase.HandleQueryUseCase
}

func newQueryFixture(t *testing.T, withPublic bool) *queryFixture {
	t.Helper()
	f := &queryFixture{
		registry: new(MockToolRegistry),
		public:   new(MockPublicRegistry),
		gateway:  new(MockGateway),
	}
	local := []domain.ToolDescriptor{*localDeepwiki(), *parallelSearch()}
	f.registry.On("List", mock.Anything).Return(local, nil)
	for i := range local {
		f.registry.On("FindToolByName", mock.Anything, local[i].Name).Return(&local[i], nil)
	}
	f.registry.On("FindToolByName", mock.Anything, mock.Anything).Return(nil, usecase.ErrToolNotFound)

	var public usecase.PublicRegistry
	if withPublic {
		public = f.public
	}
	logger := testLogger()
	router, err := usecase.NewRouter(f.gateway, "router-model", logger)
	require.NoError(t, err)
	chain := usecase.NewResolutionChain(f.registry, public, nil, logger)
	creds := usecase.NewCredentialResolver(envMap(nil))
	f.uc = usecase.NewHandleQueryUseCase(usecase.HandleQueryDeps{
		Router:     router,
		Selector:   usecase.NewSelectionEngine(f.gateway, "model", logger),
		Executor:   usecase.NewExecuteToolsUseCase(chain, creds, f.gateway, memcache.New(nil, logger), "model", nil, logger),
		Curl:       usecase.NewCurlUseCase(chain, creds, usecase.CurlOptions{Endpoint: "https://api.groq.com/openai/v1/responses", Model: "model"}, logger),
		Introspect: usecase.NewIntrospectUseCase(f.registry, logger),
		Registry:   f.registry,
		Public:     public,
		Gateway:    f.gateway,
		Model:      "model",
	}, logger)
	return f
}

func (f *queryFixture) routeTo(intent domain.Intent, extra string) {
	f.gateway.On("Respond", mock.Anything, isRouterCall).
		Return(textResponse(fmt.Sprintf(`{"intent":%q,"reasoning":"because"%s}`, intent, extra)), nil).Once()
}

func TestHandleQuery_Introspection(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentIntrospection, "")

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "what can you do?"})
	require.NoError(t, err)

	assert.True(t, resp.Introspection)
	assert.Equal(t, domain.IntentIntrospection, resp.Intent)
	assert.Contains(t, resp.Response, "- **deepwiki** (deepwiki): Ask questions about GitHub repositories.")
	assert.Contains(t, resp.Response, "- **parallel_web_search** (parallel_web_search)")
	assert.Len(t, f.gateway.Requests(), 1)
	assert.Nil(t, resp.Error)
}

func TestHandleQuery_DirectResponse(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentDirectResponse, `,"prompt":"Explain recursion in one paragraph."`)
	f.gateway.On("Respond", mock.Anything, mock.MatchedBy(func(r domain.UpstreamRequest) bool {
		return r.Format == nil && len(r.Tools) == 0 && r.Input == "Explain recursion in one paragraph."
	})).Return(textResponse("Recursion is..."), nil).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "what is recursion?", APIKey: "caller-upstream-key"})
	require.NoError(t, err)

	assert.True(t, resp.DirectResponse)
	assert.Equal(t, "Recursion is...", resp.Response)
	reqs := f.gateway.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "caller-upstream-key", reqs[1].APIKey)
	f.gateway.AssertExpectations(t)
}

func TestHandleQuery_CallerUpstreamKeyOnEveryCall(t *testing.T) {
	selection := textResponse(`{"selected_tools":[{"name":"deepwiki","reason":"repo docs"}],"execution_query":"Describe golang/go"}`)
	tests := []struct {
		name      string
		intent    domain.Intent
		extra     string
		stub      func(g *MockGateway)
		wantCalls int
	}{
		{name: "introspection", intent: domain.IntentIntrospection, wantCalls: 1},
		{
			name:   "direct response",
			intent: domain.IntentDirectResponse,
			extra:  `,"prompt":"Answer briefly."`,
			stub: func(g *MockGateway) {
				g.On("Respond", mock.Anything, mock.MatchedBy(func(r domain.UpstreamRequest) bool {
					return r.Input == "Answer briefly."
				})).Return(textResponse("ok"), nil).Once()
			},
			wantCalls: 2,
		},
		{
			name:   "curl generation",
			intent: domain.IntentCurlGeneration,
			stub: func(g *MockGateway) {
				g.On("Respond", mock.Anything, isSelectionCall).Return(selection, nil).Once()
			},
			wantCalls: 2,
		},
		{
			name:   "tool execution",
			intent: domain.IntentToolExecution,
			stub: func(g *MockGateway) {
				g.On("Respond", mock.Anything, isSelectionCall).Return(selection, nil).Once()
				g.On("Respond", mock.Anything, isToolCall).Return(textResponse("answer"), nil).Once()
			},
			wantCalls: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQueryFixture(t, false)
			f.routeTo(tt.intent, tt.extra)
			if tt.stub != nil {
				tt.stub(f.gateway)
			}

			resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "tell me about golang/go", APIKey: "caller-key"})
			require.NoError(t, err)
			require.Nil(t, resp.Error)
			assert.Equal(t, tt.intent, resp.Intent)

			reqs := f.gateway.Requests()
			require.Len(t, reqs, tt.wantCalls)
			for i, r := range reqs {
				assert.Equal(t, "caller-key", r.APIKey, "gateway call %d", i)
			}
			f.gateway.AssertExpectations(t)
		})
	}
}

func TestHandleQuery_ToolExecutionWithQueryCredentials(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentToolExecution, "")
	f.gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse(
		`{"selected_tools":[{"name":"parallel_web_search","reason":"live news"}],"execution_query":"Find today's AI news"}`,
	), nil).Once()
	f.gateway.On("Respond", mock.Anything, isToolCall).Return(&domain.UpstreamResponse{
		ID:         "resp_42",
		OutputText: "Three stories today.",
		ToolCalls:  []domain.ToolCall{{ServerLabel: "parallel_web_search", Name: "web_search_preview"}},
	}, nil).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{
		Query: "search the web for AI news with my api key is sk-abc123def",
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	reqs := f.gateway.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.NotContains(t, r.Input, "sk-abc123def")
	}
	assert.Equal(t, "Find today's AI news", reqs[2].Input)
	assert.Equal(t, "sk-abc123def", reqs[2].Tools[0].Headers["x-api-key"])

	assert.Equal(t, domain.IntentToolExecution, resp.Intent)
	assert.Equal(t, []domain.SelectedTool{{Name: "parallel_web_search", Reason: "live news", RegistrySource: domain.ToolSourceLocal}}, resp.SelectedTools)
	assert.Equal(t, "Find today's AI news", resp.ExecutionQuery)
	require.Len(t, resp.ResolvedToolConfigs, 1)
	assert.Equal(t, "<PARALLEL_API_KEY>", resp.ResolvedToolConfigs[0].Headers["x-api-key"])
	require.NotNil(t, resp.Result)
	assert.Equal(t, "Three stories today.", resp.Result.Text)
	assert.Equal(t, "resp_42", resp.Result.ResponseID)
	assert.Len(t, resp.Result.ToolCalls, 1)
	assert.Empty(t, resp.Warnings)
}

func TestHandleQuery_ExecutionFailureIsReportedNotReturned(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentToolExecution, "")
	f.gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse(
		`{"selected_tools":[{"name":"deepwiki"}],"execution_query":"Describe golang/go"}`,
	), nil).Once()
	f.gateway.On("Respond", mock.Anything, isToolCall).Return(nil, &domain.UpstreamError{
		StatusCode: http.StatusInternalServerError, Category: domain.CategoryToolExecution, Message: "MCP server crashed",
	}).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "describe golang/go"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CategoryToolExecution, resp.Error.Category)
	assert.Equal(t, http.StatusBadGateway, resp.Error.StatusCode)
	assert.Nil(t, resp.Result)
	assert.Equal(t, []domain.SelectedTool{{Name: "deepwiki", RegistrySource: domain.ToolSourceLocal}}, resp.SelectedTools)
}

func TestHandleQuery_SelectionParseFailure(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentToolExecution, "")
	f.gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse("no idea"), nil).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "do something"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CategorySelectionParse, resp.Error.Category)
	assert.Equal(t, "no idea", resp.Error.RawOutput)
	assert.Len(t, f.gateway.Requests(), 2)
}

func TestHandleQuery_RouterFallbackStillExecutes(t *testing.T) {
	f := newQueryFixture(t, false)
	f.gateway.On("Respond", mock.Anything, isRouterCall).Return(nil, errors.New("router down")).Once()
	f.gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse(
		`{"selected_tools":[{"name":"deepwiki"}]}`,
	), nil).Once()
	f.gateway.On("Respond", mock.Anything, isToolCall).Return(textResponse("answer"), nil).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "how does golang/go work"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentToolExecution, resp.Intent)
	assert.True(t, strings.HasPrefix(resp.Reasoning, "Router fallback"))
	assert.Equal(t, "how does golang/go work", resp.ExecutionQuery)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "answer", resp.Result.Text)
}

func TestHandleQuery_CurlGeneration(t *testing.T) {
	f := newQueryFixture(t, false)
	f.routeTo(domain.IntentCurlGeneration, "")
	f.gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse(
		`{"selected_tools":[{"name":"parallel_web_search"}],"execution_query":"Search for Go 1.24 release notes"}`,
	), nil).Once()

	resp, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "show me a curl example for searching Go release notes"})
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	assert.True(t, resp.CurlGeneration)
	assert.Contains(t, resp.CurlCommand, "<PARALLEL_API_KEY>")
	assert.Contains(t, resp.CurlCommand, "Search for Go 1.24 release notes")
	assert.Nil(t, resp.Result)
	f.gateway.AssertNotCalled(t, "Respond", mock.Anything, isToolCall)
}

func TestHandleQuery_InvalidInput(t *testing.T) {
	f := newQueryFixture(t, false)
	_, err := f.uc.Handle(context.Background(), usecase.QueryRequest{Query: "  "})
	assert.ErrorIs(t, err, usecase.ErrInvalidInput)
	f.gateway.AssertNotCalled(t, "Respond", mock.Anything, mock.Anything)
}

func TestHandleQuery_ExecuteExplicitBatch(t *testing.T) {
	f := newQueryFixture(t, false)
	f.gateway.On("Respond", mock.Anything, isToolCall).Return(textResponse("done"), nil).Once()

	resp, err := f.uc.Execute(context.Background(), usecase.ExecuteRequest{
		Tools: "deepwiki, https://example.com/mcp",
		Query: "compare them",
	})
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	assert.Equal(t, []domain.SelectedTool{
		{Name: "deepwiki", Reason: "requested explicitly", RegistrySource: domain.ToolSourceLocal},
		{Name: "https://example.com/mcp", Reason: "requested explicitly", RegistrySource: domain.ToolSourceURL},
	}, resp.SelectedTools)
	require.Len(t, resp.ResolvedToolConfigs, 2)
	assert.Equal(t, "Custom MCP Server (example.com)", resp.ResolvedToolConfigs[1].ServerLabel)
	assert.Equal(t, "done", resp.Result.Text)

	_, err = f.uc.Execute(context.Background(), usecase.ExecuteRequest{Tools: "deepwiki"})
	assert.ErrorIs(t, err, usecase.ErrInvalidInput)
}

func TestHandleQuery_Candidates(t *testing.T) {
	conversation := []domain.ConversationTurn{
		{Role: domain.RoleAssistant, Text: "Available tools at https://x.com/mcp\n- **search**\n- **deepwiki**"},
	}

	t.Run("ordered, deduplicated and capped", func(t *testing.T) {
		f := newQueryFixture(t, true)
		var public []domain.ToolDescriptor
		for i := 0; i < 25; i++ {
			public = append(public, domain.ToolDescriptor{Name: fmt.Sprintf("public_%02d", i), ServerURL: "https://p.example.com"})
		}
		f.public.On("Search", mock.Anything, "find things", usecase.DefaultPublicCandidates).Return(public, nil).Once()

		got, err := f.uc.Candidates(context.Background(), "find things", conversation)
		require.NoError(t, err)
		require.Len(t, got, usecase.MaxCandidates)
		assert.Equal(t, domain.ToolCandidate{Name: "deepwiki", Description: "Ask questions about GitHub repositories.", Source: domain.ToolSourceLocal, ServerURL: "https://mcp.deepwiki.com/mcp"}, got[0])
		assert.Equal(t, "parallel_web_search", got[1].Name)
		assert.Equal(t, domain.ToolCandidate{Name: "search", Description: "announced at https://x.com/mcp", Source: domain.ToolSourceDiscovered, ServerURL: "https://x.com/mcp"}, got[2])
		assert.Equal(t, "public_00", got[3].Name)
		assert.Equal(t, domain.ToolSourcePublic, got[3].Source)
		assert.Equal(t, "public_16", got[19].Name)
	})

	t.Run("public registry failure is ignored", func(t *testing.T) {
		f := newQueryFixture(t, true)
		f.public.On("Search", mock.Anything, "find things", usecase.DefaultPublicCandidates).Return(nil, errors.New("registry down")).Once()

		got, err := f.uc.Candidates(context.Background(), "find things", conversation)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}
