package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// ToolRegistrar is the part of the mcp-go server this package needs.
type ToolRegistrar interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Dependencies groups the use cases exposed as MCP tools.
type Dependencies struct {
	Query     *usecase.HandleQueryUseCase
	Functions *usecase.ListFunctionsUseCase
	Public    usecase.PublicRegistry // optional
}

// Tools exposes the navigator itself as MCP tools.
type Tools struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewTools creates the tool set.
func NewTools(deps Dependencies, logger *slog.Logger) *Tools {
	return &Tools{deps: deps, logger: logger.With("component", "mcpserver")}
}

// NewServer builds an mcp-go server with every navigator tool registered.
func NewServer(name, version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	tools.Register(s)
	return s
}

// Register adds every navigator tool to r.
func (t *Tools) Register(r ToolRegistrar) {
	headersOpt := mcp.WithObject("headers",
		mcp.Description("Per-tool headers, keyed by tool name, e.g. {\"parallel_web_search\": {\"x-api-key\": \"...\"}}"))

	r.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Answer a natural-language request, choosing and running remote MCP tools when needed."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What you want to know or do")),
		mcp.WithArray("conversation", mcp.Description("Earlier turns as {role, text} objects, oldest first")),
		headersOpt,
	), t.Navigate)

	r.AddTool(mcp.NewTool("execute_tools",
		mcp.WithDescription("Run a query against named tools. Names may be local tools, server URLs, or public registry names."),
		mcp.WithString("tools", mcp.Required(), mcp.Description("Comma-separated tool names or URLs")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language request for the tools")),
		headersOpt,
	), t.ExecuteTools)

	r.AddTool(mcp.NewTool("list_tool_functions",
		mcp.WithDescription("List the functions a tool's MCP server exposes."),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name, server URL, or public registry name")),
		headersOpt,
	), t.ListToolFunctions)

	if t.deps.Public != nil {
		r.AddTool(mcp.NewTool("search_registry",
			mcp.WithDescription("Search the public MCP registry for remote servers."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Keywords")),
			mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		), t.SearchRegistry)
	}
}

// Navigate handles the navigate tool.
func (t *Tools) Navigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	headers, err := headersArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conversation, err := conversationArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := t.deps.Query.Handle(ctx, usecase.QueryRequest{
		Query:        stringArg(args, "query"),
		Conversation: conversation,
		Headers:      headers,
	})
	return t.queryResult(resp, err)
}

// ExecuteTools handles the execute_tools tool.
func (t *Tools) ExecuteTools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	headers, err := headersArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := t.deps.Query.Execute(ctx, usecase.ExecuteRequest{
		Tools:   stringArg(args, "tools"),
		Query:   stringArg(args, "query"),
		Headers: headers,
	})
	return t.queryResult(resp, err)
}

// ListToolFunctions handles the list_tool_functions tool.
func (t *Tools) ListToolFunctions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	headers, err := headersArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	listing, err := t.deps.Functions.Execute(ctx, usecase.ListFunctionsRequest{
		Tool:    stringArg(args, "tool"),
		Headers: headers,
	})
	if err != nil {
		return errorResult(usecase.DescribeError(err)), nil
	}
	text := listing.Announcement
	for _, w := range listing.Warnings {
		text += "\n\nWarning: " + w.String()
	}
	return mcp.NewToolResultText(text), nil
}

// SearchRegistry handles the search_registry tool.
func (t *Tools) SearchRegistry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := 0
	if n, ok := args["limit"].(float64); ok {
		limit = int(n)
	}
	results, err := t.deps.Public.Search(ctx, query, limit)
	if err != nil {
		t.logger.Warn("Registry search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("registry search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No remote MCP servers match %q.", query)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Public registry results for %q:\n", query)
	for _, d := range results {
		fmt.Fprintf(&b, "- **%s**: %s (%s)\n", d.Name, d.Description(), d.ServerURL)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (t *Tools) queryResult(resp *usecase.QueryResponse, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(usecase.DescribeError(err)), nil
	}
	if resp.Error != nil {
		return errorResult(resp.Error), nil
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	raw := strings.TrimRight(b.String(), "\n")
	text := summary(resp)
	if text == "" {
		return mcp.NewToolResultText(raw), nil
	}
	return mcp.NewToolResultText(text + "\n\n" + raw), nil
}

func summary(resp *usecase.QueryResponse) string {
	switch {
	case resp.Response != "":
		return resp.Response
	case resp.Result != nil:
		return resp.Result.Text
	}
	return ""
}

func errorResult(p *usecase.ErrorPayload) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %s", p.Category, p.Message)
	if p.Remediation != "" {
		msg += "\n" + p.Remediation
	}
	return mcp.NewToolResultError(msg)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// headersArg accepts {"tool": {"Header": "value"}}. Non-string values are rejected.
func headersArg(args map[string]any) (map[string]map[string]string, error) {
	raw, ok := args["headers"]
	if !ok || raw == nil {
		return nil, nil
	}
	var out map[string]map[string]string
	if err := remarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("headers must map tool names to string headers: %v", err)
	}
	return out, nil
}

func conversationArg(args map[string]any) ([]domain.ConversationTurn, error) {
	raw, ok := args["conversation"]
	if !ok || raw == nil {
		return nil, nil
	}
	var out []domain.ConversationTurn
	if err := remarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("conversation must be a list of {role, text} objects: %v", err)
	}
	return out, nil
}

func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
