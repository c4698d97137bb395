package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// CurlOptions describes the upstream endpoint the example command targets.
type CurlOptions struct {
	Endpoint          string // e.g. https://api.groq.com/openai/v1/responses
	Model             string
	APIKeyPlaceholder string // e.g. $GROQ_API_KEY
}

// CurlRequest asks for an example command for the named tools.
type CurlRequest struct {
	Tools        []string
	Query        string
	Headers      map[string]map[string]string
	Conversation []domain.ConversationTurn
}

// CurlExample is a ready-to-run command. It is never executed here.
type CurlExample struct {
	Command string                `json:"curl_command"`
	Tools   []domain.ResolvedTool `json:"tools"`
	Query   string                `json:"query"`
}

// CurlUseCase builds example commands with credentials redacted.
type CurlUseCase struct {
	chain       *ResolutionChain
	credentials *CredentialResolver
	opts        CurlOptions
	logger      *slog.Logger
}

// NewCurlUseCase creates a CurlUseCase.
func NewCurlUseCase(chain *ResolutionChain, credentials *CredentialResolver, opts CurlOptions, logger *slog.Logger) *CurlUseCase {
	if opts.APIKeyPlaceholder == "" {
		opts.APIKeyPlaceholder = "$API_KEY"
	}
	return &CurlUseCase{
		chain:       chain,
		credentials: credentials,
		opts:        opts,
		logger:      logger.With("usecase", "GenerateCurl"),
	}
}

type curlBody struct {
	Model string                `json:"model"`
	Input string                `json:"input"`
	Tools []domain.ResolvedTool `json:"tools"`
}

// Generate resolves the tools and renders the command.
func (uc *CurlUseCase) Generate(ctx context.Context, req CurlRequest) (*CurlExample, error) {
	if len(req.Tools) == 0 {
		return nil, fmt.Errorf("%w: at least one tool name is required", ErrInvalidInput)
	}
	query, _ := domain.ExtractCredentials(strings.TrimSpace(req.Query))
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	memory := domain.ScanConversation(req.Conversation)
	var tools []domain.ResolvedTool
	for _, name := range req.Tools {
		desc, err := uc.chain.Resolve(ctx, name, memory)
		if err != nil {
			return nil, err
		}
		res := uc.credentials.Resolve(*desc, HeadersForTool(req.Headers, desc.Name))
		tools = append(tools, RedactTool(*desc, res.Tool))
	}

	var body strings.Builder
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(curlBody{Model: uc.opts.Model, Input: query, Tools: tools}); err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	raw := strings.TrimRight(body.String(), "\n")

	var b strings.Builder
	fmt.Fprintf(&b, "curl -X POST %s \\\n", shellQuote(uc.opts.Endpoint))
	fmt.Fprintf(&b, "  -H \"Authorization: Bearer %s\" \\\n", uc.opts.APIKeyPlaceholder)
	b.WriteString("  -H \"Content-Type: application/json\" \\\n")
	fmt.Fprintf(&b, "  -d %s", shellQuote(raw))

	uc.logger.Info("Generated example command", slog.Int("tools", len(tools)))
	return &CurlExample{Command: b.String(), Tools: tools, Query: query}, nil
}

// IsCredentialHeader reports whether a header name looks like it carries a secret.
func IsCredentialHeader(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "api") || strings.Contains(n, "key") || strings.Contains(n, "auth")
}

// wellKnownPlaceholders maps server host fragments to the secret name their
// docs use. Checked in order.
var wellKnownPlaceholders = []struct{ host, name string }{
	{"parallel.ai", "PARALLEL_API_KEY"},
	{"huggingface.co", "HF_TOKEN"},
	{"stripe.com", "STRIPE_SECRET_KEY"},
	{"context7.com", "CONTEXT7_API_KEY"},
	{"githubcopilot", "GITHUB_TOKEN"},
	{"api.github.com", "GITHUB_TOKEN"},
	{"exa.ai", "EXA_API_KEY"},
	{"firecrawl.dev", "FIRECRAWL_API_KEY"},
	{"tavily.com", "TAVILY_API_KEY"},
	{"brave.com", "BRAVE_API_KEY"},
}

var placeholderRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// RedactTool replaces every credential-looking header value with a bracketed
// placeholder. A "Bearer " prefix is kept.
func RedactTool(desc domain.ToolDescriptor, tool domain.ResolvedTool) domain.ResolvedTool {
	out := tool
	out.Headers = make(map[string]string, len(tool.Headers))
	for name, value := range tool.Headers {
		if !IsCredentialHeader(name) {
			out.Headers[name] = value
			continue
		}
		token := "<" + placeholderName(desc, name) + ">"
		if len(value) >= 7 && strings.EqualFold(value[:7], "bearer ") {
			token = "Bearer " + token
		}
		out.Headers[name] = token
	}
	return out
}

// placeholderName picks the well-known secret name for the server's host,
// then the env var backing the header template, then the header name itself.
func placeholderName(desc domain.ToolDescriptor, header string) string {
	if u, err := url.Parse(desc.ServerURL); err == nil {
		host := strings.ToLower(u.Hostname())
		for _, wk := range wellKnownPlaceholders {
			if strings.Contains(host, wk.host) {
				return wk.name
			}
		}
	}
	for tmplName, tmpl := range desc.Headers {
		if strings.EqualFold(tmplName, header) && tmpl.Source == domain.HeaderSourceEnv && tmpl.EnvVar != "" {
			return tmpl.EnvVar
		}
	}
	return strings.ToUpper(strings.Trim(placeholderRe.ReplaceAllString(header, "_"), "_"))
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
