package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// IntrospectUseCase describes what the navigator can do. It makes no
// upstream call.
type IntrospectUseCase struct {
	registry ToolRegistry
	logger   *slog.Logger
}

// NewIntrospectUseCase creates an IntrospectUseCase.
func NewIntrospectUseCase(registry ToolRegistry, logger *slog.Logger) *IntrospectUseCase {
	return &IntrospectUseCase{
		registry: registry,
		logger:   logger.With("usecase", "Introspect"),
	}
}

// Describe renders the capability summary followed by the local tools.
func (uc *IntrospectUseCase) Describe(ctx context.Context) (string, error) {
	tools, err := uc.registry.List(ctx)
	if err != nil {
		uc.logger.Error("Failed to list tools from registry", slog.Any("error", err))
		return "", fmt.Errorf("failed to list tools from registry: %w", err)
	}

	var b strings.Builder
	b.WriteString(`I route your questions to remote MCP tool servers. I can:
- answer general questions directly,
- pick the right tools for a question and run them for you,
- call any MCP server you name by URL, or one listed earlier in our conversation,
- look up servers in the public MCP registry by name,
- list the functions a server exposes,
- generate a ready-to-run curl example showing how to call a tool.

Pass credentials per tool as headers, or mention them in your message (for example "my api key is ...") and I will strip them from the query before it reaches the model.
`)
	if len(tools) == 0 {
		b.WriteString("\nNo local tools are registered.")
		return b.String(), nil
	}
	b.WriteString("\nLocal tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- **%s** (%s)", t.Name, t.ServerLabel)
		if d := t.Description(); d != "" {
			fmt.Fprintf(&b, ": %s", d)
		}
		b.WriteString("\n")
		if t.Meta != nil && len(t.Meta.ExampleQueries) > 0 {
			fmt.Fprintf(&b, "  e.g. %q\n", t.Meta.ExampleQueries[0])
		}
	}
	uc.logger.Debug("Described capabilities", slog.Int("tools", len(tools)))
	return strings.TrimRight(b.String(), "\n"), nil
}
