package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// SelectionEngine asks the upstream model to pick tools for a query.
type SelectionEngine struct {
	gateway Gateway
	model   string
	logger  *slog.Logger
}

// NewSelectionEngine creates a SelectionEngine.
func NewSelectionEngine(gateway Gateway, model string, logger *slog.Logger) *SelectionEngine {
	return &SelectionEngine{
		gateway: gateway,
		model:   model,
		logger:  logger.With("usecase", "SelectTools"),
	}
}

type selectionReply struct {
	SelectedTools []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
		Source string `json:"source"`
	} `json:"selected_tools"`
	ExecutionQuery string `json:"execution_query"`
}

// Select asks the model for 1-3 tools and a natural-language execution query.
// query must already have credential phrases removed. Unparseable replies
// return a *SelectionParseError carrying the raw text; there is no retry.
func (e *SelectionEngine) Select(ctx context.Context, query string, candidates []domain.ToolCandidate, conversation []domain.ConversationTurn, apiKey string) (*domain.SelectionResult, error) {
	log := e.logger.With(slog.Int("candidates", len(candidates)))
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if len(candidates) == 0 {
		return nil, &NotFoundError{ToolName: query}
	}

	resp, err := e.gateway.Respond(ctx, domain.UpstreamRequest{
		APIKey: apiKey,
		Model:  e.model,
		Input:  selectionPrompt(query, candidates, conversation),
	})
	if err != nil {
		log.Error("Selection upstream call failed", slog.Any("error", err))
		return nil, err
	}

	result, err := parseSelection(resp.OutputText, candidates)
	if err != nil {
		log.Warn("Could not parse tool selection", slog.Any("error", err))
		return nil, &SelectionParseError{Raw: resp.OutputText, Err: err}
	}
	if result.ExecutionQuery == "" {
		result.ExecutionQuery = query
	}
	log.Info("Tools selected", slog.Any("tools", result.ToolNames()))
	return result, nil
}

func parseSelection(raw string, candidates []domain.ToolCandidate) (*domain.SelectionResult, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, errors.New("no JSON object in model reply")
	}
	var reply selectionReply
	if err := json.Unmarshal([]byte(obj), &reply); err != nil {
		return nil, fmt.Errorf("invalid JSON in model reply: %w", err)
	}

	sources := make(map[string]domain.ToolSource, len(candidates))
	for _, c := range candidates {
		if _, seen := sources[c.Name]; !seen {
			sources[c.Name] = c.Source
		}
	}

	result := &domain.SelectionResult{ExecutionQuery: strings.TrimSpace(reply.ExecutionQuery)}
	seen := map[string]bool{}
	for _, t := range reply.SelectedTools {
		name := strings.TrimSpace(t.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		src, known := sources[name]
		if !known {
			src = domain.ToolSource(t.Source)
			if src != domain.ToolSourceLocal && src != domain.ToolSourceDiscovered {
				src = domain.ToolSourcePublic
			}
		}
		result.SelectedTools = append(result.SelectedTools, domain.SelectedTool{
			Name:           name,
			Reason:         strings.TrimSpace(t.Reason),
			RegistrySource: src,
		})
		if len(result.SelectedTools) == domain.MaxSelectedTools {
			break
		}
	}
	if len(result.SelectedTools) == 0 {
		return nil, errors.New("model selected no tools")
	}
	return result, nil
}

func selectionPrompt(query string, candidates []domain.ToolCandidate, conversation []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(`Select the MCP tools that best answer the user's query.

Rules:
- Select between 1 and 3 tools.
- Prefer local tools over discovered tools, and discovered tools over public registry tools.
- Write "execution_query" as a plain natural-language request for the tool, not as a function call. Good: "Find the current weather in Paris". Bad: "search(query='weather Paris')".

Available tools:
`)
	for _, group := range []struct {
		source domain.ToolSource
		title  string
	}{
		{domain.ToolSourceLocal, "Local tools"},
		{domain.ToolSourceDiscovered, "Discovered in this conversation"},
		{domain.ToolSourcePublic, "Public registry"},
	} {
		var lines []string
		for _, c := range candidates {
			if c.Source != group.source {
				continue
			}
			line := "- " + c.Name
			if c.Description != "" {
				line += ": " + firstSentence(c.Description)
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (source %q):\n%s\n", group.title, group.source, strings.Join(lines, "\n"))
	}
	if len(conversation) > 0 {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(domain.FormatTranscript(conversation, 6))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser query: %s\n", query)
	b.WriteString(`
Reply with only a JSON object:
{"selected_tools": [{"name": "...", "reason": "...", "source": "local|discovered|public"}], "execution_query": "..."}`)
	return b.String()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\n"); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	return s
}
