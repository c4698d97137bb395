package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	oaischema "github.com/sashabaranov/go-openai/jsonschema"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

const routerFormatName = "routing_decision"

// routerOutputSchema is the constrained shape the router model must answer with.
var routerOutputSchema = oaischema.Definition{
	Type: oaischema.Object,
	Properties: map[string]oaischema.Definition{
		"intent": {
			Type:        oaischema.String,
			Description: "The single intent that best matches the user's latest query.",
			Enum: []string{
				string(domain.IntentIntrospection),
				string(domain.IntentDirectResponse),
				string(domain.IntentToolExecution),
				string(domain.IntentCurlGeneration),
			},
		},
		"reasoning": {
			Type:        oaischema.String,
			Description: "One short sentence explaining the choice.",
		},
		"prompt": {
			Type:        oaischema.String,
			Description: "For direct_response only: the prompt to answer the user with.",
		},
	},
	Required:             []string{"intent", "reasoning"},
	AdditionalProperties: false,
}

type routerOutput struct {
	Intent    domain.Intent `json:"intent"`
	Reasoning string        `json:"reasoning"`
	Prompt    string        `json:"prompt"`
}

// Router classifies a query into one of the four intents. It never fails:
// any upstream or parsing problem degrades to tool execution.
type Router struct {
	gateway   Gateway
	model     string
	format    *domain.OutputFormat
	validator *jsonschema.Schema
	logger    *slog.Logger
}

// NewRouter compiles the router output schema and returns a Router.
func NewRouter(gateway Gateway, model string, logger *slog.Logger) (*Router, error) {
	raw, err := json.Marshal(routerOutputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal router schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to decode router schema: %w", err)
	}
	// Strict mode upstream needs additionalProperties:false; locally, extra
	// fields in an otherwise valid reply are ignored.
	lenient := make(map[string]any, len(schemaMap))
	for k, v := range schemaMap {
		if k != "additionalProperties" {
			lenient[k] = v
		}
	}
	lenientRaw, err := json.Marshal(lenient)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal router schema: %w", err)
	}
	validator, err := jsonschema.CompileString(routerFormatName+".schema.json", string(lenientRaw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile router schema: %w", err)
	}
	return &Router{
		gateway:   gateway,
		model:     model,
		format:    &domain.OutputFormat{Name: routerFormatName, Schema: schemaMap},
		validator: validator,
		logger:    logger.With("usecase", "RouteQuery"),
	}, nil
}

// Route returns the routing decision for query. It makes exactly one
// upstream call, authenticated with apiKey when set.
func (r *Router) Route(ctx context.Context, query string, conversation []domain.ConversationTurn, apiKey string) domain.RoutingDecision {
	log := r.logger.With(slog.Int("turns", len(conversation)))

	resp, err := r.gateway.Respond(ctx, domain.UpstreamRequest{
		APIKey: apiKey,
		Model:  r.model,
		Input:  routerPrompt(query, conversation),
		Format: r.format,
	})
	if err != nil {
		log.Warn("Router upstream call failed, falling back to tool execution", slog.Any("error", err))
		return fallbackDecision(err)
	}

	out, err := r.parse(resp.OutputText)
	if err != nil {
		log.Warn("Router output unusable, falling back to tool execution", slog.Any("error", err), slog.String("raw", resp.OutputText))
		return fallbackDecision(err)
	}

	decision := domain.RoutingDecision{
		Intent:    out.Intent,
		Reasoning: out.Reasoning,
	}
	if out.Intent == domain.IntentDirectResponse {
		decision.Prompt = strings.TrimSpace(out.Prompt)
		if decision.Prompt == "" {
			decision.Prompt = directResponsePrompt(query, conversation)
		}
	}
	log.Info("Query routed", slog.String("intent", string(decision.Intent)))
	return decision
}

func (r *Router) parse(text string) (*routerOutput, error) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return nil, errors.New("no JSON object in router output")
	}
	var generic any
	if err := json.Unmarshal([]byte(obj), &generic); err != nil {
		return nil, fmt.Errorf("router output is not valid JSON: %w", err)
	}
	// Models often send "prompt": null for intents that do not use it.
	if m, ok := generic.(map[string]any); ok {
		for k, v := range m {
			if v == nil {
				delete(m, k)
			}
		}
	}
	if err := r.validator.Validate(generic); err != nil {
		return nil, fmt.Errorf("router output does not match schema: %w", err)
	}
	var out routerOutput
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, fmt.Errorf("failed to decode router output: %w", err)
	}
	if !out.Intent.Valid() || strings.TrimSpace(out.Reasoning) == "" {
		return nil, errors.New("router output missing intent or reasoning")
	}
	return &out, nil
}

// IsFallback reports whether d came from the router's degraded path.
func IsFallback(d domain.RoutingDecision) bool {
	return d.Intent == domain.IntentToolExecution && strings.HasPrefix(d.Reasoning, fallbackReasonPrefix)
}

const fallbackReasonPrefix = "Router fallback"

func fallbackDecision(cause error) domain.RoutingDecision {
	return domain.RoutingDecision{
		Intent:    domain.IntentToolExecution,
		Reasoning: fmt.Sprintf("%s (%v); defaulting to tool execution.", fallbackReasonPrefix, cause),
	}
}

func routerPrompt(query string, conversation []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(`You route requests for an MCP tool navigator. The navigator can call remote MCP tool servers through the Responses API, describe its own capabilities, answer from general knowledge, or produce example curl commands.

Classify the user's latest query into exactly one intent:
- introspection: the user asks what the navigator can do, which tools or servers it knows, or how to use it.
- direct_response: the query can be answered from general knowledge with no live data, search, or external service.
- tool_execution: the query needs live or external data, a web search, a specific MCP tool or server URL, or an action on a remote service.
- curl_generation: the user asks for an example command, curl request, or code showing how to call a tool.

When unsure between direct_response and tool_execution, choose tool_execution.
`)
	if len(conversation) > 0 {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(domain.FormatTranscript(conversation, 10))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUser query: %s\n\nAnswer with a JSON object {\"intent\": ..., \"reasoning\": ..., \"prompt\": ...}. Include \"prompt\" only for direct_response.", query)
	return b.String()
}

func directResponsePrompt(query string, conversation []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Answer the user's question from your general knowledge. Be concise and accurate, and say so if the answer may depend on recent events.\n")
	if len(conversation) > 0 {
		b.WriteString("\nConversation context:\n")
		b.WriteString(domain.FormatTranscript(conversation, 10))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s", query)
	return b.String()
}
