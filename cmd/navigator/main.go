package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/janzheng/mcp-navigator/configs"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           configs.AppName,
		Short:         "Route natural-language queries to remote MCP tool servers",
		Version:       configs.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "tool registry YAML file or github:// URL (overrides NAVIGATOR_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides NAVIGATOR_LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newExecuteCmd(opts),
		newFunctionsCmd(opts),
		newResolveCmd(opts),
		newToolsCmd(opts),
		newSearchCmd(opts),
	)
	return root
}
