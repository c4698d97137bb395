package mcpregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultBaseURL  = "https://registry.modelcontextprotocol.io/v0/servers"
	DefaultMaxPages = 3
	DefaultPageSize = 100
	DefaultLimit    = 10
)

// Config configures the public registry client.
type Config struct {
	BaseURL  string
	MaxPages int
	PageSize int
	Client   *http.Client
}

// Client reads the public MCP server catalog. Nothing is cached between calls.
type Client struct {
	baseURL  string
	maxPages int
	pageSize int
	client   *http.Client
	logger   *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		maxPages: cfg.MaxPages,
		pageSize: cfg.PageSize,
		client:   cfg.Client,
		logger:   logger.With("component", "public_registry"),
	}
}

var _ usecase.PublicRegistry = (*Client)(nil)

// Lookup returns the first remote-capable entry whose name equals name, or
// failing that, the first whose normalized name equals or contains the
// normalized query (or is contained by it). Catalog order breaks ties.
func (c *Client) Lookup(ctx context.Context, name string) (*domain.ToolDescriptor, error) {
	ctx, span := observability.Tracer().Start(ctx, "PublicRegistry.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	entries, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := match(entries, name)
	if !ok {
		c.logger.Debug("No public registry match", slog.String("tool_name", name), slog.Int("entries", len(entries)))
		return nil, usecase.ErrToolNotFound
	}
	desc := entry.descriptor()
	c.logger.Info("Resolved tool from public registry",
		slog.String("tool_name", name),
		slog.String("registry_name", entry.Name),
		slog.String("server_url", desc.ServerURL))
	return &desc, nil
}

// Search returns up to limit remote-capable entries whose normalized name or
// description contains any keyword of query, in catalog order.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.ToolDescriptor, error) {
	ctx, span := observability.Tracer().Start(ctx, "PublicRegistry.Search")
	defer span.End()

	if limit <= 0 {
		limit = DefaultLimit
	}
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}
	entries, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.ToolDescriptor
	for _, e := range entries {
		haystack := Normalize(e.Name) + " " + strings.ToLower(e.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				out = append(out, e.descriptor())
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	span.SetAttributes(attribute.Int("registry.results", len(out)))
	c.logger.Debug("Searched public registry", slog.Any("keywords", keywords), slog.Int("results", len(out)))
	return out, nil
}

// catalog pages through the registry, following cursors up to maxPages,
// and keeps only entries with a usable remote endpoint.
func (c *Client) catalog(ctx context.Context) ([]entry, error) {
	var (
		out    []entry
		cursor string
	)
	for page := 0; page < c.maxPages; page++ {
		body, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, item := range body.Servers {
			e := item.flatten()
			if _, ok := e.preferredRemote(); ok && e.Name != "" {
				out = append(out, e)
			}
		}
		cursor = body.Metadata.cursor()
		if cursor == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*listResponse, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL %s: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Registry request failed", slog.Any("error", err))
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return &body, nil
}

func match(entries []entry, name string) (entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	want := Normalize(name)
	if want == "" {
		return entry{}, false
	}
	for _, e := range entries {
		got := Normalize(e.Name)
		if got == "" {
			continue
		}
		if got == want || strings.Contains(got, want) || strings.Contains(want, got) {
			return e, true
		}
	}
	return entry{}, false
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and collapses every run of non-alphanumerics to "-".
func Normalize(s string) string {
	return strings.Trim(nonAlnumRun.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "how": true,
	"use": true, "using": true, "please": true, "find": true, "can": true, "you": true,
	"about": true, "from": true, "that": true, "this": true, "are": true, "tool": true,
	"tools": true, "server": true, "mcp": true, "get": true, "show": true, "tell": true,
}

// Keywords splits a query into normalized search terms, dropping short
// words and filler.
func Keywords(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range strings.Split(Normalize(query), "-") {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
