package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/janzheng/mcp-navigator/configs"
	"github.com/janzheng/mcp-navigator/internal/adapter/inbound/httpapi"
	"github.com/janzheng/mcp-navigator/internal/adapter/inbound/mcpserver"
)

const stdioLogFile = "/tmp/mcp-navigator.log"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and the navigator MCP tools",
		Long: `Transports:
  http   JSON API and streamable-HTTP MCP endpoint (/mcp) on NAVIGATOR_LISTEN_ADDR,
         plus an MCP SSE server on NAVIGATOR_MCP_LISTEN_ADDR
  sse    MCP SSE server only, on NAVIGATOR_LISTEN_ADDR
  stdio  MCP over stdin/stdout; logs go to ` + stdioLogFile,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, transport)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "http", "Transport mode: http, sse or stdio")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, transport string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// === Logging ===
	var logOut io.Writer = os.Stderr
	if transport == "stdio" {
		// In STDIO mode, log to file to avoid interfering with stdio communication
		logFile, err := os.OpenFile(stdioLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logOut = io.Discard
		} else {
			defer logFile.Close()
			logOut = logFile
		}
	}
	logger := newLogger(cfg, logOut)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("transport", transport))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	tools := mcpserver.NewTools(mcpserver.Dependencies{
		Query:     a.query,
		Functions: a.functions,
		Public:    a.public,
	}, logger)
	mcpSrv := mcpserver.NewServer(configs.AppName, configs.Version, tools)

	switch transport {
	case "stdio":
		logger.Info("Starting in STDIO mode")
		if err := mcpGoServer.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil

	case "sse":
		logger.Info("Starting in SSE mode")
		sseServer := mcpGoServer.NewSSEServer(mcpSrv, mcpGoServer.WithBaseURL(baseURL(cfg.ListenAddr)))
		errCh := make(chan error, 1)
		go func() {
			logger.Info("MCP SSE server starting.", slog.String("address", cfg.ListenAddr))
			errCh <- sseServer.Start(cfg.ListenAddr)
		}()
		return waitAndShutdown(ctx, logger, cfg.ShutdownTimeout, errCh, namedShutdown{"MCP SSE server", sseServer.Shutdown})

	case "http":
		mux := http.NewServeMux()
		httpapi.NewHandlers(httpapi.Dependencies{
			Query:     a.query,
			Functions: a.functions,
			Curl:      a.curl,
			Registry:  a.registry,
			Public:    a.public,
			Metrics:   a.metrics,
		}, logger).RegisterRoutes(mux)
		mux.Handle("/mcp", mcpGoServer.NewStreamableHTTPServer(mcpSrv))

		apiServer := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ServerReadTimeout,
			WriteTimeout: cfg.ServerWriteTimeout,
			IdleTimeout:  cfg.ServerIdleTimeout,
		}
		sseServer := mcpGoServer.NewSSEServer(mcpSrv, mcpGoServer.WithBaseURL(baseURL(cfg.MCPListenAddr)))

		errCh := make(chan error, 2)
		go func() {
			logger.Info("HTTP API server starting.", slog.String("address", cfg.ListenAddr))
			errCh <- apiServer.ListenAndServe()
		}()
		go func() {
			logger.Info("MCP SSE server starting.", slog.String("address", cfg.MCPListenAddr))
			errCh <- sseServer.Start(cfg.MCPListenAddr)
		}()
		return waitAndShutdown(ctx, logger, cfg.ShutdownTimeout, errCh,
			namedShutdown{"HTTP API server", apiServer.Shutdown},
			namedShutdown{"MCP SSE server", sseServer.Shutdown})

	default:
		return fmt.Errorf("invalid transport mode %q (want http, sse or stdio)", transport)
	}
}

type namedShutdown struct {
	name string
	fn   func(context.Context) error
}

// waitAndShutdown blocks until ctx ends or a server fails, then shuts every
// server down within timeout.
func waitAndShutdown(ctx context.Context, logger *slog.Logger, timeout time.Duration, errCh <-chan error, servers ...namedShutdown) error {
	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed.", slog.Any("error", err))
			runErr = err
		}
	}

	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, s := range servers {
		if err := s.fn(shutdownCtx); err != nil {
			logger.Error(s.name+" graceful shutdown failed.", slog.Any("error", err))
		}
	}
	logger.Info("Servers shut down gracefully.")
	return runErr
}

// baseURL turns a listen address such as ":8081" into a URL clients can reach.
func baseURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
