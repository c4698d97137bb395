package mcpdiscovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// DefaultTimeout bounds one initialize + tools/list round trip.
const DefaultTimeout = 20 * time.Second

// Discoverer lists a remote server's functions by speaking MCP to it directly.
// URLs ending in /sse use the SSE transport; everything else uses streamable HTTP.
type Discoverer struct {
	info    mcp.Implementation
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Discoverer that identifies itself as name/version.
func New(name, version string, timeout time.Duration, logger *slog.Logger) *Discoverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Discoverer{
		info:    mcp.Implementation{Name: name, Version: version},
		timeout: timeout,
		logger:  logger.With("component", "mcp_discovery"),
	}
}

// Discover connects, initializes, and calls tools/list. Header values that
// mark a missing credential are not sent.
func (d *Discoverer) Discover(ctx context.Context, tool domain.ResolvedTool) ([]domain.ToolFunction, error) {
	ctx, span := observability.Tracer().Start(ctx, "Discoverer.Discover")
	defer span.End()
	span.SetAttributes(attribute.String("mcp.server_url", tool.ServerURL))

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := d.logger.With(slog.String("server_url", tool.ServerURL), slog.String("server_label", tool.ServerLabel))

	headers := make(map[string]string, len(tool.Headers))
	for k, v := range tool.Headers {
		if domain.IsMissingCredential(v) {
			continue
		}
		headers[k] = v
	}

	c, err := newClient(tool.ServerURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", tool.ServerURL, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debug("Closing MCP client failed", slog.Any("error", err))
		}
	}()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", tool.ServerURL, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = d.info
	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP session with %s: %w", tool.ServerURL, err)
	}
	log.Debug("MCP session initialized",
		slog.String("server_name", initResult.ServerInfo.Name),
		slog.String("protocol_version", initResult.ProtocolVersion))

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools/list failed for %s: %w", tool.ServerURL, err)
	}

	fns := make([]domain.ToolFunction, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		fns = append(fns, domain.ToolFunction{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t),
		})
	}
	span.SetAttributes(attribute.Int("mcp.functions", len(fns)))
	log.Info("Listed remote functions", slog.Int("count", len(fns)))
	return fns, nil
}

func newClient(serverURL string, headers map[string]string) (*client.Client, error) {
	if strings.HasSuffix(strings.TrimRight(serverURL, "/"), "/sse") {
		return client.NewSSEMCPClient(serverURL, client.WithHeaders(headers))
	}
	return client.NewStreamableHttpClient(serverURL, transport.WithHTTPHeaders(headers))
}

// inputSchema returns the tool's input schema as generic JSON, whichever of
// the typed or raw forms the server supplied.
func inputSchema(t mcp.Tool) map[string]any {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var decoded struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded.InputSchema
}
