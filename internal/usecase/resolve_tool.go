package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// ResolutionChain turns a tool name into a descriptor. The order is fixed:
// local registry, literal URL, conversation memory, public registry.
// Execution, listing and example generation all resolve through it.
type ResolutionChain struct {
	registry ToolRegistry
	public   PublicRegistry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewResolutionChain creates a chain. public may be nil to disable the
// public registry step.
func NewResolutionChain(registry ToolRegistry, public PublicRegistry, metrics *observability.Metrics, logger *slog.Logger) *ResolutionChain {
	return &ResolutionChain{
		registry: registry,
		public:   public,
		metrics:  metrics,
		logger:   logger.With("usecase", "ResolveTool"),
	}
}

// Resolve returns a descriptor for name or a *NotFoundError.
// Dynamic descriptors are fresh values owned by the caller.
func (c *ResolutionChain) Resolve(ctx context.Context, name string, memory domain.ConversationMemory) (*domain.ToolDescriptor, error) {
	ctx, span := observability.Tracer().Start(ctx, "ResolutionChain.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	log := c.logger.With(slog.String("tool_name", name))
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &NotFoundError{ToolName: name}
	}

	// 1. Local registry.
	if desc, err := c.registry.FindToolByName(ctx, name); err == nil {
		return c.resolved(log, span, desc, domain.ToolSourceLocal), nil
	} else if !errors.Is(err, ErrToolNotFound) {
		log.Warn("Local registry lookup failed", slog.Any("error", err))
	}

	// 2. The name is itself a server URL.
	if _, ok := domain.ParseServerURL(name); ok {
		desc, err := domain.NewCustomServerDescriptor(name, name, domain.ToolSourceURL)
		if err == nil {
			return c.resolved(log, span, &desc, domain.ToolSourceURL), nil
		}
	}

	// 3. A server announced earlier in the conversation.
	if srv, ok := memory.ServerFor(name); ok {
		desc, err := domain.NewCustomServerDescriptor(name, srv.URL, domain.ToolSourceDiscovered)
		if err == nil {
			return c.resolved(log, span, &desc, domain.ToolSourceDiscovered), nil
		}
		log.Warn("Ignoring conversation server with invalid URL", slog.String("server_url", srv.URL))
	}

	// 4. Public registry.
	if c.public != nil {
		desc, err := c.public.Lookup(ctx, name)
		switch {
		case err == nil:
			desc.Source = domain.ToolSourcePublic
			return c.resolved(log, span, desc, domain.ToolSourcePublic), nil
		case errors.Is(err, ErrToolNotFound):
			log.Debug("Public registry has no match")
		default:
			log.Warn("Public registry lookup failed", slog.Any("error", err))
			span.RecordError(err)
			return nil, &NotFoundError{ToolName: name, Err: err}
		}
	}

	log.Info("Tool not found by any resolution step")
	return nil, &NotFoundError{ToolName: name}
}

func (c *ResolutionChain) resolved(log *slog.Logger, span trace.Span, desc *domain.ToolDescriptor, source domain.ToolSource) *domain.ToolDescriptor {
	span.SetAttributes(attribute.String("tool.source", string(source)))
	c.metrics.ToolResolved(string(source))
	log.Debug("Resolved tool", slog.String("source", string(source)), slog.String("server_url", desc.ServerURL))
	return desc
}
