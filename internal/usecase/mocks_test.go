package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockToolRegistry is a mock implementation of usecase.ToolRegistry.
type MockToolRegistry struct {
	mock.Mock
}

func (m *MockToolRegistry) Save(ctx context.Context, tools []domain.ToolDescriptor) error {
	return m.Called(ctx, tools).Error(0)
}

func (m *MockToolRegistry) List(ctx context.Context) ([]domain.ToolDescriptor, error) {
	args := m.Called(ctx)
	var list []domain.ToolDescriptor
	if v := args.Get(0); v != nil {
		list = v.([]domain.ToolDescriptor)
	}
	return list, args.Error(1)
}

func (m *MockToolRegistry) FindToolByName(ctx context.Context, name string) (*domain.ToolDescriptor, error) {
	args := m.Called(ctx, name)
	var d *domain.ToolDescriptor
	if v := args.Get(0); v != nil {
		c := v.(*domain.ToolDescriptor).Clone()
		d = &c
	}
	return d, args.Error(1)
}

// MockPublicRegistry is a mock implementation of usecase.PublicRegistry.
type MockPublicRegistry struct {
	mock.Mock
}

func (m *MockPublicRegistry) Lookup(ctx context.Context, name string) (*domain.ToolDescriptor, error) {
	args := m.Called(ctx, name)
	var d *domain.ToolDescriptor
	if v := args.Get(0); v != nil {
		c := v.(*domain.ToolDescriptor).Clone()
		d = &c
	}
	return d, args.Error(1)
}

func (m *MockPublicRegistry) Search(ctx context.Context, query string, limit int) ([]domain.ToolDescriptor, error) {
	args := m.Called(ctx, query, limit)
	var list []domain.ToolDescriptor
	if v := args.Get(0); v != nil {
		list = v.([]domain.ToolDescriptor)
	}
	return list, args.Error(1)
}

// MockGateway is a mock implementation of usecase.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Respond(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	args := m.Called(ctx, req)
	var resp *domain.UpstreamResponse
	if v := args.Get(0); v != nil {
		resp = v.(*domain.UpstreamResponse)
	}
	return resp, args.Error(1)
}

// Requests returns every request the gateway received, in order.
func (m *MockGateway) Requests() []domain.UpstreamRequest {
	var out []domain.UpstreamRequest
	for _, c := range m.Calls {
		if c.Method == "Respond" {
			out = append(out, c.Arguments.Get(1).(domain.UpstreamRequest))
		}
	}
	return out
}

// MockDiscoverer is a mock implementation of usecase.FunctionDiscoverer.
type MockDiscoverer struct {
	mock.Mock
}

func (m *MockDiscoverer) Discover(ctx context.Context, tool domain.ResolvedTool) ([]domain.ToolFunction, error) {
	args := m.Called(ctx, tool)
	var fns []domain.ToolFunction
	if v := args.Get(0); v != nil {
		fns = v.([]domain.ToolFunction)
	}
	return fns, args.Error(1)
}

// Request matchers for the three kinds of upstream call.
var (
	isRouterCall = mock.MatchedBy(func(r domain.UpstreamRequest) bool {
		return r.Format != nil && r.Format.Name == "routing_decision"
	})
	isSelectionCall = mock.MatchedBy(func(r domain.UpstreamRequest) bool {
		return r.Format == nil && len(r.Tools) == 0 && strings.HasPrefix(r.Input, "Select the MCP tools")
	})
	isToolCall = mock.MatchedBy(func(r domain.UpstreamRequest) bool {
		return len(r.Tools) > 0
	})
)

func textResponse(text string) *domain.UpstreamResponse {
	return &domain.UpstreamResponse{ID: "resp_1", Status: "completed", OutputText: text}
}

// envMap is an EnvLookup backed by a map.
func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func parallelSearch() *domain.ToolDescriptor {
	return &domain.ToolDescriptor{
		Name:            "parallel_web_search",
		ServerLabel:     "parallel_web_search",
		ServerURL:       "https://mcp.parallel.ai/v1beta/search_mcp",
		Headers:         map[string]domain.HeaderValue{"x-api-key": domain.EnvironmentRef("PARALLEL_API_KEY", "")},
		RequireApproval: domain.ApprovalNever,
		Meta:            &domain.ToolMeta{Description: "Search the web with Parallel."},
		Source:          domain.ToolSourceLocal,
	}
}

func huggingFace() *domain.ToolDescriptor {
	return &domain.ToolDescriptor{
		Name:            "huggingface",
		ServerLabel:     "huggingface",
		ServerURL:       "https://huggingface.co/mcp",
		Headers:         map[string]domain.HeaderValue{"Authorization": domain.EnvironmentRef("HF_TOKEN", "Bearer ")},
		RequireApproval: domain.ApprovalNever,
		Source:          domain.ToolSourceLocal,
	}
}
