package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// ListFunctionsRequest asks which functions a tool server exposes.
type ListFunctionsRequest struct {
	Tool         string
	Headers      map[string]map[string]string
	Conversation []domain.ConversationTurn
}

// FunctionListing is the result of a listing request.
type FunctionListing struct {
	Tool         string                `json:"tool"`
	ServerLabel  string                `json:"server_label"`
	ServerURL    string                `json:"server_url"`
	Functions    []domain.ToolFunction `json:"functions"`
	Cached       bool                  `json:"cached"`
	Warnings     []CredentialWarning   `json:"warnings,omitempty"`
	Announcement string                `json:"announcement"`
}

// ListFunctionsUseCase resolves a tool and lists its functions, using the
// schema cache before any discovery round-trip.
type ListFunctionsUseCase struct {
	chain       *ResolutionChain
	credentials *CredentialResolver
	cache       SchemaCache
	discoverer  FunctionDiscoverer
	logger      *slog.Logger
}

// NewListFunctionsUseCase creates a ListFunctionsUseCase.
func NewListFunctionsUseCase(chain *ResolutionChain, credentials *CredentialResolver, cache SchemaCache, discoverer FunctionDiscoverer, logger *slog.Logger) *ListFunctionsUseCase {
	return &ListFunctionsUseCase{
		chain:       chain,
		credentials: credentials,
		cache:       cache,
		discoverer:  discoverer,
		logger:      logger.With("usecase", "ListFunctions"),
	}
}

// Execute lists the functions of req.Tool. An empty discovery result is
// cached like any other.
func (uc *ListFunctionsUseCase) Execute(ctx context.Context, req ListFunctionsRequest) (*FunctionListing, error) {
	name := strings.TrimSpace(req.Tool)
	if name == "" {
		return nil, fmt.Errorf("%w: tool name is required", ErrInvalidInput)
	}
	log := uc.logger.With(slog.String("tool_name", name))

	memory := domain.ScanConversation(req.Conversation)
	desc, err := uc.chain.Resolve(ctx, name, memory)
	if err != nil {
		return nil, err
	}

	listing := &FunctionListing{
		Tool:        desc.Name,
		ServerLabel: desc.ServerLabel,
		ServerURL:   desc.ServerURL,
	}

	if fns, ok := uc.cache.Get(desc.Name, desc.ServerURL); ok {
		log.Debug("Schema cache hit", slog.Int("count", len(fns)))
		listing.Functions = fns
		listing.Cached = true
		listing.Announcement = domain.FormatAnnouncement(desc.ServerURL, fns)
		return listing, nil
	}

	caller := mergeHeaders(extractedFor(*desc, memory.CredentialHeaders()), HeadersForTool(req.Headers, desc.Name))
	res := uc.credentials.Resolve(*desc, caller)
	if len(res.MissingCredentials) > 0 {
		listing.Warnings = append(listing.Warnings, CredentialWarning{Tool: desc.Name, Headers: res.MissingCredentials})
		log.Warn("Missing credentials for discovery", slog.Any("headers", res.MissingCredentials))
	}

	log.Info("Discovering functions", slog.String("server_url", desc.ServerURL))
	fns, err := uc.discoverer.Discover(ctx, res.Tool)
	if err != nil {
		log.Error("Function discovery failed", slog.Any("error", err))
		return nil, fmt.Errorf("failed to discover functions for %s: %w", desc.Name, err)
	}
	if fns == nil {
		fns = []domain.ToolFunction{}
	}
	uc.cache.Set(desc.Name, desc.ServerURL, fns)

	listing.Functions = fns
	listing.Announcement = domain.FormatAnnouncement(desc.ServerURL, fns)
	log.Info("Functions discovered", slog.Int("count", len(fns)))
	return listing, nil
}
