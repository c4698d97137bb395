package configs

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/github"
	"github.com/janzheng/mcp-navigator/internal/domain"
)

// Application identity reported to MCP peers and in traces.
const (
	AppName = "mcp-navigator"
	Version = "0.1.0"
)

// DefaultConfigFile is used when NAVIGATOR_CONFIG_FILE is unset. A missing
// default file is not an error.
const DefaultConfigFile = "configs/navigator.yaml"

//go:embed builtin_tools.yaml
var builtinTools []byte

// HeaderSpec is a header template entry as written in YAML: either a bare
// string or {value, env, prefix}.
type HeaderSpec struct {
	Value  string `yaml:"value"`
	Env    string `yaml:"env"`
	Prefix string `yaml:"prefix"`
}

// UnmarshalYAML accepts the scalar and mapping forms.
func (h *HeaderSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		h.Value = node.Value
		return nil
	}
	type plain HeaderSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*h = HeaderSpec(p)
	return nil
}

// HeaderValue converts the YAML form into a domain.HeaderValue.
func (h HeaderSpec) HeaderValue() domain.HeaderValue {
	if h.Env != "" {
		return domain.EnvironmentRef(h.Env, h.Prefix).WithDefault(h.Value)
	}
	return domain.Literal(h.Prefix + h.Value)
}

// MetaSpec is documentation-only tool metadata.
type MetaSpec struct {
	Description    string   `yaml:"description"`
	ExampleQueries []string `yaml:"example_queries"`
	UseCases       []string `yaml:"use_cases"`
}

// ToolEntry is one local registry entry.
type ToolEntry struct {
	Name            string                `yaml:"name"`
	ServerLabel     string                `yaml:"server_label"`
	ServerURL       string                `yaml:"server_url"`
	Headers         map[string]HeaderSpec `yaml:"headers,omitempty"`
	RequireApproval string                `yaml:"require_approval,omitempty"`
	Meta            *MetaSpec             `yaml:"meta,omitempty"`
}

// Descriptor validates the entry and converts it to a local ToolDescriptor.
func (e ToolEntry) Descriptor() (domain.ToolDescriptor, error) {
	if strings.TrimSpace(e.Name) == "" {
		return domain.ToolDescriptor{}, errors.New("tool entry is missing a name")
	}
	if _, ok := domain.ParseServerURL(e.ServerURL); !ok {
		return domain.ToolDescriptor{}, fmt.Errorf("tool %q has an invalid server_url %q", e.Name, e.ServerURL)
	}
	d := domain.ToolDescriptor{
		Name:            e.Name,
		ServerLabel:     e.ServerLabel,
		ServerURL:       e.ServerURL,
		RequireApproval: e.RequireApproval,
		Source:          domain.ToolSourceLocal,
	}
	if d.ServerLabel == "" {
		d.ServerLabel = e.Name
	}
	if d.RequireApproval == "" {
		d.RequireApproval = domain.ApprovalNever
	}
	if len(e.Headers) > 0 {
		d.Headers = make(map[string]domain.HeaderValue, len(e.Headers))
		for k, v := range e.Headers {
			d.Headers[k] = v.HeaderValue()
		}
	}
	if e.Meta != nil {
		d.Meta = &domain.ToolMeta{
			Description:    e.Meta.Description,
			ExampleQueries: e.Meta.ExampleQueries,
			UseCases:       e.Meta.UseCases,
		}
	}
	return d, nil
}

// FileConfig defines the structure loaded from the YAML configuration file.
type FileConfig struct {
	Tools []ToolEntry `yaml:"tools"`
}

// Config holds the final application configuration, merged from file and environment variables.
// Fields are loaded from environment variables with the prefix "NAVIGATOR_", potentially overriding file settings.
type Config struct {
	ConfigFilePath string `envconfig:"CONFIG_FILE" default:"configs/navigator.yaml"`

	// Tools is the built-in catalog merged with the file's entries.
	Tools []ToolEntry `ignored:"true"`

	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":8080"`
	MCPListenAddr      string        `envconfig:"MCP_LISTEN_ADDR" default:":8081"`
	HTTPClientTimeout  time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	ServerReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"5s"`
	ServerWriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ServerIdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`

	UpstreamBaseURL string `envconfig:"UPSTREAM_BASE_URL" default:"https://api.groq.com/openai/v1"`
	UpstreamAPIKey  string `envconfig:"UPSTREAM_API_KEY"`
	Model           string `envconfig:"MODEL" default:"openai/gpt-oss-120b"`
	RouterModel     string `envconfig:"ROUTER_MODEL"`

	PublicRegistryURL      string        `envconfig:"PUBLIC_REGISTRY_URL" default:"https://registry.modelcontextprotocol.io/v0/servers"`
	PublicRegistryMaxPages int           `envconfig:"PUBLIC_REGISTRY_MAX_PAGES" default:"3"`
	PublicRegistryPageSize int           `envconfig:"PUBLIC_REGISTRY_PAGE_SIZE" default:"100"`
	DisablePublicRegistry  bool          `envconfig:"DISABLE_PUBLIC_REGISTRY" default:"false"`
	DiscoveryTimeout       time.Duration `envconfig:"DISCOVERY_TIMEOUT" default:"20s"`

	GitHubToken string `envconfig:"GITHUB_TOKEN"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterOtlpInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	LogLevel                 string `envconfig:"LOG_LEVEL" default:"info"`
}

// ParsedLogLevel returns the slog.Level based on the configured LogLevel string.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EffectiveRouterModel is RouterModel, or Model when unset.
func (c *Config) EffectiveRouterModel() string {
	if c.RouterModel != "" {
		return c.RouterModel
	}
	return c.Model
}

// Descriptors converts every tool entry, failing on the first invalid one.
func (c *Config) Descriptors() ([]domain.ToolDescriptor, error) {
	out := make([]domain.ToolDescriptor, 0, len(c.Tools))
	for _, e := range c.Tools {
		d, err := e.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Load loads configuration first from environment variables (to get file path),
// then from the specified YAML file, and finally merges/overrides with environment variables again.
func Load() (*Config, error) {
	var initialCfg Config
	if err := envconfig.Process("navigator", &initialCfg); err != nil {
		return nil, fmt.Errorf("failed to process initial environment variables: %w", err)
	}

	fileCfg, err := readFileConfig(initialCfg.ConfigFilePath, initialCfg.GitHubToken)
	if err != nil {
		return nil, err
	}

	finalCfg := initialCfg
	builtin, err := BuiltinTools()
	if err != nil {
		return nil, err
	}
	finalCfg.Tools = MergeTools(builtin, fileCfg.Tools)

	if err := envconfig.Process("navigator", &finalCfg); err != nil {
		return nil, fmt.Errorf("failed to process overriding environment variables: %w", err)
	}
	if finalCfg.UpstreamAPIKey == "" {
		finalCfg.UpstreamAPIKey = os.Getenv("GROQ_API_KEY")
	}
	return &finalCfg, nil
}

func readFileConfig(path, githubToken string) (FileConfig, error) {
	var fileCfg FileConfig
	if path == "" {
		slog.Info("No config file path specified (NAVIGATOR_CONFIG_FILE), using built-in tools only.")
		return fileCfg, nil
	}

	var (
		raw []byte
		err error
	)
	if github.IsGitHubURL(path) {
		gh := github.NewClient("", githubToken, &http.Client{Timeout: 30 * time.Second}, slog.Default())
		raw, err = gh.FetchFile(context.Background(), path)
		if err != nil {
			return fileCfg, fmt.Errorf("failed to load config from GitHub '%s': %w", path, err)
		}
		slog.Info("Loaded configuration from GitHub.", "url", path)
	} else {
		raw, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) && path == DefaultConfigFile {
			slog.Info("Default config file not found, using built-in tools only.", "path", path)
			return fileCfg, nil
		}
		if err != nil {
			return fileCfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		slog.Info("Loaded configuration from file.", "path", path)
	}

	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return fileCfg, fmt.Errorf("failed to unmarshal config file '%s': %w", path, err)
	}
	return fileCfg, nil
}

// BuiltinTools returns the embedded tool catalog.
func BuiltinTools() ([]ToolEntry, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(builtinTools, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse built-in tools: %w", err)
	}
	return fc.Tools, nil
}

// MergeTools returns base with every override applied by name. Overrides of
// unknown names are appended in order.
func MergeTools(base, overrides []ToolEntry) []ToolEntry {
	out := make([]ToolEntry, 0, len(base)+len(overrides))
	index := make(map[string]int, len(base))
	for _, e := range base {
		index[e.Name] = len(out)
		out = append(out, e)
	}
	for _, e := range overrides {
		if i, ok := index[e.Name]; ok {
			out[i] = e
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}
