package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// withApp loads configuration, wires the navigator with logs on stderr and
// runs fn against it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.logLevel == "" && os.Getenv("NAVIGATOR_LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// headerFlags parses repeated "tool:Header=value" flags.
func headerFlags(raw []string) (map[string]map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := map[string]map[string]string{}
	for _, h := range raw {
		tool, rest, ok := strings.Cut(h, ":")
		name, value, ok2 := strings.Cut(rest, "=")
		if !ok || !ok2 || tool == "" || name == "" {
			return nil, fmt.Errorf("invalid --header %q, want tool:Header=value", h)
		}
		if out[tool] == nil {
			out[tool] = map[string]string{}
		}
		out[tool][name] = value
	}
	return out, nil
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "ask <query...>",
		Short: "Route a query and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := headerFlags(headers)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				resp, err := a.query.Handle(cmd.Context(), usecase.QueryRequest{
					Query:   strings.Join(args, " "),
					Headers: h,
				})
				if err != nil {
					return err
				}
				return renderQuery(cmd.OutOrStdout(), resp, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Per-tool header as tool:Header=value (repeatable)")
	return cmd
}

func newExecuteCmd(opts *rootOptions) *cobra.Command {
	var (
		tools   string
		asJSON  bool
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "execute --tools a,b <query...>",
		Short: "Run a query against named tools without routing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := headerFlags(headers)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				resp, err := a.query.Execute(cmd.Context(), usecase.ExecuteRequest{
					Tools:   tools,
					Query:   strings.Join(args, " "),
					Headers: h,
				})
				if err != nil {
					return err
				}
				return renderQuery(cmd.OutOrStdout(), resp, asJSON)
			})
		},
	}
	cmd.Flags().StringVar(&tools, "tools", "", "Comma-separated tool names or server URLs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Per-tool header as tool:Header=value (repeatable)")
	_ = cmd.MarkFlagRequired("tools")
	return cmd
}

func newFunctionsCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "functions <tool>",
		Short: "List the functions a tool's MCP server exposes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := headerFlags(headers)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				listing, err := a.functions.Execute(cmd.Context(), usecase.ListFunctionsRequest{Tool: args[0], Headers: h})
				if err != nil {
					return errors.New(renderError(usecase.DescribeError(err)))
				}
				w := cmd.OutOrStdout()
				if asJSON {
					return printJSON(w, listing)
				}
				fmt.Fprintln(w, listing.Announcement)
				for _, warn := range listing.Warnings {
					fmt.Fprintln(w, color.YellowString("warning: %s", warn.String()))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Per-tool header as tool:Header=value (repeatable)")
	return cmd
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <tool>",
		Short: "Show the redacted configuration a tool name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				desc, err := a.chain.Resolve(cmd.Context(), args[0], domain.ConversationMemory{})
				if err != nil {
					return errors.New(renderError(usecase.DescribeError(err)))
				}
				res := a.credentials.Resolve(*desc, nil)
				return printJSON(cmd.OutOrStdout(), struct {
					Name               string              `json:"name"`
					Source             domain.ToolSource   `json:"source"`
					Tool               domain.ResolvedTool `json:"tool"`
					MissingCredentials []string            `json:"missing_credentials,omitempty"`
				}{desc.Name, desc.Source, usecase.RedactTool(*desc, res.Tool), res.MissingCredentials})
			})
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the local tool registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				tools, err := a.registry.List(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, t := range tools {
					fmt.Fprintf(w, "%s  %s\n", color.CyanString(t.Name), color.HiBlackString(t.ServerURL))
					if d := t.Description(); d != "" {
						fmt.Fprintf(w, "    %s\n", d)
					}
				}
				return nil
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <keywords...>",
		Short: "Search the public MCP registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if a.public == nil {
					return errors.New("public registry is disabled (NAVIGATOR_DISABLE_PUBLIC_REGISTRY)")
				}
				results, err := a.public.Search(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return fmt.Errorf("registry search failed: %w", err)
				}
				w := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(w, "No matching servers.")
					return nil
				}
				for _, d := range results {
					fmt.Fprintf(w, "%s  %s\n    %s\n", color.CyanString(d.Name), color.HiBlackString(d.ServerURL), d.Description())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	return cmd
}

func renderQuery(w io.Writer, resp *usecase.QueryResponse, asJSON bool) error {
	if asJSON {
		return printJSON(w, resp)
	}
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(w, "intent: %s\n", resp.Intent)
	if resp.Reasoning != "" {
		gray.Fprintf(w, "  %s\n", resp.Reasoning)
	}
	for _, t := range resp.SelectedTools {
		src := ""
		if t.RegistrySource != "" {
			src = " [" + string(t.RegistrySource) + "]"
		}
		gray.Fprintf(w, "  tool %s%s: %s\n", t.Name, src, t.Reason)
	}
	for _, warn := range resp.Warnings {
		yellow.Fprintf(w, "warning: %s\n", warn)
	}
	fmt.Fprintln(w)

	switch {
	case resp.Error != nil:
		return errors.New(renderError(resp.Error))
	case resp.CurlCommand != "":
		fmt.Fprintln(w, resp.CurlCommand)
	case resp.Response != "":
		fmt.Fprintln(w, resp.Response)
	case resp.Result != nil:
		fmt.Fprintln(w, resp.Result.Text)
	}
	return nil
}

func renderError(p *usecase.ErrorPayload) string {
	msg := color.New(color.FgRed, color.Bold).Sprintf("%s", p.Category) + ": " + p.Message
	if p.Remediation != "" {
		msg += "\n" + p.Remediation
	}
	if p.RawOutput != "" {
		msg += "\n" + color.HiBlackString("model output: %s", p.RawOutput)
	}
	return msg
}
