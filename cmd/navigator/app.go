package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/janzheng/mcp-navigator/configs"
	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/mcpdiscovery"
	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/mcpregistry"
	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/memcache"
	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/memrepo"
	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/responses"
	"github.com/janzheng/mcp-navigator/internal/observability"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// app holds every wired component. Commands pick what they need.
type app struct {
	cfg     *configs.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	registry    *memrepo.InMemoryToolRegistry
	public      usecase.PublicRegistry
	chain       *usecase.ResolutionChain
	credentials *usecase.CredentialResolver

	query     *usecase.HandleQueryUseCase
	functions *usecase.ListFunctionsUseCase
	curl      *usecase.CurlUseCase

	shutdown func(context.Context) error
}

// loadConfig applies the persistent flags and loads configuration.
func loadConfig(opts *rootOptions) (*configs.Config, error) {
	if opts.configFile != "" {
		if err := os.Setenv("NAVIGATOR_CONFIG_FILE", opts.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := configs.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *configs.Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.ParsedLogLevel()}))
	slog.SetDefault(logger)
	return logger
}

// newApp wires the navigator the same way for every command.
func newApp(ctx context.Context, cfg *configs.Config, logger *slog.Logger) (*app, error) {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OtelExporterOtlpEndpoint,
		Insecure:    cfg.OtelExporterOtlpInsecure,
		ServiceName: configs.AppName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(nil),
		shutdown: shutdownTracing,
	}

	// --- Tool Registry Store ---
	descriptors, err := cfg.Descriptors()
	if err != nil {
		return nil, fmt.Errorf("invalid tool configuration: %w", err)
	}
	a.registry = memrepo.NewInMemoryToolRegistry(logger)
	if err := a.registry.Save(ctx, descriptors); err != nil {
		return nil, fmt.Errorf("failed to load tool registry: %w", err)
	}

	// --- Outbound adapters ---
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	gateway := responses.New(responses.Config{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  cfg.UpstreamAPIKey,
		Client:  httpClient,
	}, a.metrics, logger)
	if cfg.UpstreamAPIKey == "" {
		logger.Warn("No upstream API key configured; requests must supply one.")
	}

	if !cfg.DisablePublicRegistry {
		a.public = mcpregistry.New(mcpregistry.Config{
			BaseURL:  cfg.PublicRegistryURL,
			MaxPages: cfg.PublicRegistryMaxPages,
			PageSize: cfg.PublicRegistryPageSize,
			Client:   httpClient,
		}, logger)
	}
	cache := memcache.New(a.metrics, logger)
	discoverer := mcpdiscovery.New(configs.AppName, configs.Version, cfg.DiscoveryTimeout, logger)

	// --- Use cases ---
	a.chain = usecase.NewResolutionChain(a.registry, a.public, a.metrics, logger)
	a.credentials = usecase.NewCredentialResolver(nil)

	router, err := usecase.NewRouter(gateway, cfg.EffectiveRouterModel(), logger)
	if err != nil {
		return nil, err
	}
	a.curl = usecase.NewCurlUseCase(a.chain, a.credentials, usecase.CurlOptions{
		Endpoint:          responses.Endpoint(cfg.UpstreamBaseURL),
		Model:             cfg.Model,
		APIKeyPlaceholder: "$GROQ_API_KEY",
	}, logger)
	a.functions = usecase.NewListFunctionsUseCase(a.chain, a.credentials, cache, discoverer, logger)
	a.query = usecase.NewHandleQueryUseCase(usecase.HandleQueryDeps{
		Router:     router,
		Selector:   usecase.NewSelectionEngine(gateway, cfg.Model, logger),
		Executor:   usecase.NewExecuteToolsUseCase(a.chain, a.credentials, gateway, cache, cfg.Model, a.metrics, logger),
		Curl:       a.curl,
		Introspect: usecase.NewIntrospectUseCase(a.registry, logger),
		Registry:   a.registry,
		Public:     a.public,
		Gateway:    gateway,
		Model:      cfg.Model,
		Metrics:    a.metrics,
	}, logger)

	logger.Info("Navigator initialized.",
		slog.Int("local_tools", len(descriptors)),
		slog.Bool("public_registry", a.public != nil),
		slog.String("model", cfg.Model),
		slog.String("upstream", cfg.UpstreamBaseURL))
	return a, nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
	}
}
