package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

var selectionCandidates = []domain.ToolCandidate{
	{Name: "parallel_web_search", Description: "Search the web.", Source: domain.ToolSourceLocal},
	{Name: "deepwiki", Description: "Ask about GitHub repositories.", Source: domain.ToolSourceLocal},
	{Name: "search", Description: "announced at https://x.com/mcp", Source: domain.ToolSourceDiscovered},
	{Name: "weather", Description: "Forecasts.", Source: domain.ToolSourcePublic},
}

func TestSelectionEngine_Select(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantTools []domain.SelectedTool
		wantQuery string
		wantParse bool
	}{
		{
			name:  "single tool",
			reply: `{"selected_tools":[{"name":"parallel_web_search","reason":"live news"}],"execution_query":"Find today's AI news"}`,
			wantTools: []domain.SelectedTool{
				{Name: "parallel_web_search", Reason: "live news", RegistrySource: domain.ToolSourceLocal},
			},
			wantQuery: "Find today's AI news",
		},
		{
			name: "capped at three and deduplicated",
			reply: `{"selected_tools":[
				{"name":"deepwiki","reason":"a"},
				{"name":"deepwiki","reason":"dup"},
				{"name":"search","reason":"b"},
				{"name":"weather","reason":"c"},
				{"name":"parallel_web_search","reason":"d"}
			],"execution_query":"q"}`,
			wantTools: []domain.SelectedTool{
				{Name: "deepwiki", Reason: "a", RegistrySource: domain.ToolSourceLocal},
				{Name: "search", Reason: "b", RegistrySource: domain.ToolSourceDiscovered},
				{Name: "weather", Reason: "c", RegistrySource: domain.ToolSourcePublic},
			},
			wantQuery: "q",
		},
		{
			name:  "unknown tool keeps a valid claimed source",
			reply: `Here you go: {"selected_tools":[{"name":"https://y.com/mcp","reason":"named","source":"discovered"},{"name":"other","source":"bogus"}]}`,
			wantTools: []domain.SelectedTool{
				{Name: "https://y.com/mcp", Reason: "named", RegistrySource: domain.ToolSourceDiscovered},
				{Name: "other", RegistrySource: domain.ToolSourcePublic},
			},
			wantQuery: "latest AI news",
		},
		{
			name:      "prose only",
			reply:     "I would use the web search tool.",
			wantParse: true,
		},
		{
			name:      "empty selection",
			reply:     `{"selected_tools":[],"execution_query":"q"}`,
			wantParse: true,
		},
		{
			name:      "truncated json",
			reply:     `{"selected_tools":[{"name":"deepwiki"`,
			wantParse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := new(MockGateway)
			gateway.On("Respond", mock.Anything, isSelectionCall).Return(textResponse(tt.reply), nil).Once()
			engine := usecase.NewSelectionEngine(gateway, "m", testLogger())

			got, err := engine.Select(context.Background(), "latest AI news", selectionCandidates, nil, "")

			gateway.AssertExpectations(t)
			if tt.wantParse {
				assert.ErrorIs(t, err, usecase.ErrSelectionParse)
				payload := usecase.DescribeError(err)
				assert.Equal(t, domain.CategorySelectionParse, payload.Category)
				assert.Equal(t, tt.reply, payload.RawOutput)
				assert.Equal(t, http.StatusBadGateway, payload.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTools, got.SelectedTools)
			assert.Equal(t, tt.wantQuery, got.ExecutionQuery)
		})
	}
}

func TestSelectionEngine_PromptGroupsCandidatesBySource(t *testing.T) {
	gateway := new(MockGateway)
	gateway.On("Respond", mock.Anything, isSelectionCall).
		Return(textResponse(`{"selected_tools":[{"name":"deepwiki"}],"execution_query":"q"}`), nil).Once()
	engine := usecase.NewSelectionEngine(gateway, "m", testLogger())

	_, err := engine.Select(context.Background(), "tell me about golang/go", selectionCandidates, nil, "")
	require.NoError(t, err)

	input := gateway.Requests()[0].Input
	assert.Contains(t, input, "Local tools (source \"local\"):\n- parallel_web_search: Search the web.\n- deepwiki: Ask about GitHub repositories.")
	assert.Contains(t, input, "Discovered in this conversation (source \"discovered\"):\n- search: announced at https://x.com/mcp")
	assert.Contains(t, input, "Public registry (source \"public\"):\n- weather: Forecasts.")
	assert.Contains(t, input, "User query: tell me about golang/go")
}

func TestSelectionEngine_NoCandidatesOrQuery(t *testing.T) {
	gateway := new(MockGateway)
	engine := usecase.NewSelectionEngine(gateway, "m", testLogger())

	_, err := engine.Select(context.Background(), "anything", nil, nil, "")
	assert.ErrorIs(t, err, usecase.ErrToolNotFound)

	_, err = engine.Select(context.Background(), " ", selectionCandidates, nil, "")
	assert.ErrorIs(t, err, usecase.ErrInvalidInput)

	gateway.AssertNotCalled(t, "Respond", mock.Anything, mock.Anything)
}

func TestSelectionEngine_UpstreamErrorPassesThrough(t *testing.T) {
	upErr := &domain.UpstreamError{StatusCode: http.StatusUnauthorized, Category: domain.CategoryAuthentication, Message: "Invalid API Key"}
	gateway := new(MockGateway)
	gateway.On("Respond", mock.Anything, isSelectionCall).Return(nil, upErr).Once()
	engine := usecase.NewSelectionEngine(gateway, "m", testLogger())

	_, err := engine.Select(context.Background(), "q", selectionCandidates, nil, "")
	assert.ErrorIs(t, err, upErr)
	assert.Equal(t, domain.CategoryAuthentication, usecase.DescribeError(err).Category)
}
