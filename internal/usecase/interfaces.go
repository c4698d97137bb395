package usecase

import (
	"context"
	"errors"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// Standard errors returned by use cases and adapters.
var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrSelectionParse = errors.New("could not parse tool selection")
)

// --- Tool Registry Store ---

// ToolRegistry is the static set of locally known tool descriptors.
// It is loaded once at startup and only read afterwards.
type ToolRegistry interface {
	// Save stores descriptors, replacing any with the same name.
	Save(ctx context.Context, tools []domain.ToolDescriptor) error

	// List returns every descriptor, sorted by name.
	List(ctx context.Context) ([]domain.ToolDescriptor, error)

	// FindToolByName returns a copy of the named descriptor or ErrToolNotFound.
	FindToolByName(ctx context.Context, name string) (*domain.ToolDescriptor, error)
}

// --- Public Registry ---

// PublicRegistry looks tools up in the public catalog of MCP servers.
type PublicRegistry interface {
	// Lookup returns the first remote-capable entry matching name exactly,
	// then fuzzily. Returns ErrToolNotFound when nothing matches.
	Lookup(ctx context.Context, name string) (*domain.ToolDescriptor, error)

	// Search returns remote-capable entries relevant to query, in catalog order.
	Search(ctx context.Context, query string, limit int) ([]domain.ToolDescriptor, error)
}

// --- Schema Cache & Discovery ---

// SchemaCache memoizes discovered functions per (tool name, server URL).
type SchemaCache interface {
	Get(toolName, serverURL string) ([]domain.ToolFunction, bool)
	Set(toolName, serverURL string, functions []domain.ToolFunction)
}

// FunctionDiscoverer asks a remote MCP server which functions it exposes.
type FunctionDiscoverer interface {
	Discover(ctx context.Context, tool domain.ResolvedTool) ([]domain.ToolFunction, error)
}

// --- Upstream Gateway ---

// Gateway is the single choke point for calls to the upstream Responses API.
// Failures are returned as *domain.UpstreamError.
type Gateway interface {
	Respond(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error)
}
