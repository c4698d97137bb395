package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// maxResponseBytes bounds how much of an upstream reply is read.
const maxResponseBytes = 16 << 20

// Config configures the gateway.
type Config struct {
	BaseURL string // e.g. https://api.groq.com/openai/v1
	APIKey  string
	Client  *http.Client
}

// Gateway calls the upstream Responses API. It is the only component that
// talks to the upstream model and the only place failures are categorized.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a Gateway. metrics may be nil.
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		endpoint: Endpoint(cfg.BaseURL),
		apiKey:   cfg.APIKey,
		client:   client,
		metrics:  metrics,
		logger:   logger.With("component", "responses_gateway"),
	}
}

// Endpoint returns the Responses URL under baseURL.
func Endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/responses"
}

type requestBody struct {
	Model string                `json:"model"`
	Input string                `json:"input"`
	Tools []domain.ResolvedTool `json:"tools,omitempty"`
	Text  *textOptions          `json:"text,omitempty"`
}

type textOptions struct {
	Format formatSpec `json:"format"`
}

type formatSpec struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

// Respond sends one request. Every failure is a *domain.UpstreamError.
func (g *Gateway) Respond(ctx context.Context, req domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	ctx, span := observability.Tracer().Start(ctx, "Gateway.Respond")
	defer span.End()
	span.SetAttributes(
		attribute.String("upstream.model", req.Model),
		attribute.Int("upstream.tools", len(req.Tools)),
	)

	withTools := len(req.Tools) > 0
	log := g.logger.With(slog.String("model", req.Model), slog.Int("tools", len(req.Tools)))
	start := time.Now()

	resp, status, err := g.do(ctx, log, req)
	elapsed := time.Since(start)
	if err != nil {
		var upErr *domain.UpstreamError
		if !errors.As(err, &upErr) {
			upErr = &domain.UpstreamError{Category: domain.CategoryTransport, Message: err.Error(), Err: err}
		}
		g.metrics.GatewayRequest(statusLabel(upErr.StatusCode), string(upErr.Category), withTools, elapsed)
		span.RecordError(upErr)
		span.SetStatus(codes.Error, string(upErr.Category))
		log.Warn("Upstream call failed",
			slog.Int("status_code", upErr.StatusCode),
			slog.String("category", string(upErr.Category)),
			slog.String("message", upErr.Message))
		return nil, upErr
	}

	g.metrics.GatewayRequest(statusLabel(status), "", withTools, elapsed)
	log.Debug("Upstream call succeeded",
		slog.Duration("elapsed", elapsed),
		slog.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

func (g *Gateway) do(ctx context.Context, log *slog.Logger, req domain.UpstreamRequest) (*domain.UpstreamResponse, int, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = g.apiKey
	}
	if apiKey == "" {
		return nil, 0, &domain.UpstreamError{
			StatusCode: http.StatusUnauthorized,
			Category:   domain.CategoryAuthentication,
			Message:    "no upstream API key configured",
		}
	}

	body := requestBody{Model: req.Model, Input: req.Input, Tools: req.Tools}
	if req.Format != nil {
		body.Text = &textOptions{Format: formatSpec{
			Type:   "json_schema",
			Name:   req.Format.Name,
			Schema: req.Format.Schema,
			Strict: req.Format.Strict,
		}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	log.Debug("Calling upstream", slog.String("url", g.endpoint), slog.Int("size", len(payload)))
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, 0, &domain.UpstreamError{
			Category: domain.CategoryTransport,
			Message:  fmt.Sprintf("request execution failed: %v", err),
			Err:      err,
		}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, httpResp.StatusCode, &domain.UpstreamError{
			StatusCode: httpResp.StatusCode,
			Category:   domain.CategoryTransport,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Err:        err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, httpResp.StatusCode, errorFromBody(httpResp.StatusCode, raw, len(req.Tools) > 0)
	}

	resp, err := Normalize(raw, len(req.Tools) > 0)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) {
			return nil, httpResp.StatusCode, upErr
		}
		return nil, httpResp.StatusCode, &domain.UpstreamError{
			StatusCode: httpResp.StatusCode,
			Category:   domain.CategoryUpstream,
			Message:    err.Error(),
			Err:        err,
		}
	}
	return resp, httpResp.StatusCode, nil
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
