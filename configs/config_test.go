package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

func TestHeaderSpec_UnmarshalYAML(t *testing.T) {
	src := `
tools:
  - name: internal
    server_url: https://mcp.internal.example.com/mcp
    headers:
      X-Team: platform
      Authorization:
        env: INTERNAL_TOKEN
        prefix: "Bearer "
      x-api-key:
        env: INTERNAL_KEY
        value: fallback
`
	var fc FileConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &fc))
	require.Len(t, fc.Tools, 1)

	d, err := fc.Tools[0].Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "internal", d.ServerLabel, "label defaults to name")
	assert.Equal(t, domain.ApprovalNever, d.RequireApproval)
	assert.Equal(t, domain.ToolSourceLocal, d.Source)
	assert.Equal(t, map[string]domain.HeaderValue{
		"X-Team":        domain.Literal("platform"),
		"Authorization": domain.EnvironmentRef("INTERNAL_TOKEN", "Bearer "),
		"x-api-key":     domain.EnvironmentRef("INTERNAL_KEY", "").WithDefault("fallback"),
	}, d.Headers)
}

func TestToolEntry_Descriptor_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entry   ToolEntry
		wantErr bool
	}{
		{name: "valid", entry: ToolEntry{Name: "a", ServerURL: "https://a.example.com/mcp"}},
		{name: "missing name", entry: ToolEntry{ServerURL: "https://a.example.com/mcp"}, wantErr: true},
		{name: "relative url", entry: ToolEntry{Name: "a", ServerURL: "/mcp"}, wantErr: true},
		{name: "unsupported scheme", entry: ToolEntry{Name: "a", ServerURL: "ftp://a.example.com"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.entry.Descriptor()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuiltinTools(t *testing.T) {
	tools, err := BuiltinTools()
	require.NoError(t, err)

	byName := map[string]ToolEntry{}
	for _, e := range tools {
		_, err := e.Descriptor()
		require.NoError(t, err, e.Name)
		byName[e.Name] = e
	}
	require.Contains(t, byName, "parallel_web_search")
	parallel, err := byName["parallel_web_search"].Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.parallel.ai/v1beta/search_mcp", parallel.ServerURL)
	assert.Equal(t, domain.EnvironmentRef("PARALLEL_API_KEY", ""), parallel.Headers["x-api-key"])
}

func TestMergeTools(t *testing.T) {
	base := []ToolEntry{{Name: "a", ServerURL: "https://a"}, {Name: "b", ServerURL: "https://b"}}
	overrides := []ToolEntry{{Name: "b", ServerURL: "https://b2"}, {Name: "c", ServerURL: "https://c"}}

	got := MergeTools(base, overrides)
	assert.Equal(t, []ToolEntry{
		{Name: "a", ServerURL: "https://a"},
		{Name: "b", ServerURL: "https://b2"},
		{Name: "c", ServerURL: "https://c"},
	}, got)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "navigator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: deepwiki
    server_url: https://override.example.com/mcp
  - name: custom
    server_url: https://custom.example.com/mcp
`), 0o600))

	t.Setenv("NAVIGATOR_CONFIG_FILE", path)
	t.Setenv("NAVIGATOR_MODEL", "test-model")
	t.Setenv("NAVIGATOR_UPSTREAM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "groq-fallback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test-model", cfg.Model)
	assert.Equal(t, "test-model", cfg.EffectiveRouterModel())
	assert.Equal(t, "groq-fallback", cfg.UpstreamAPIKey)
	assert.Equal(t, ":8080", cfg.ListenAddr)

	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	urls := map[string]string{}
	for _, d := range descs {
		urls[d.Name] = d.ServerURL
	}
	assert.Equal(t, "https://override.example.com/mcp", urls["deepwiki"])
	assert.Equal(t, "https://custom.example.com/mcp", urls["custom"])
	assert.Contains(t, urls, "parallel_web_search")
}

func TestLoad_MissingNonDefaultFileFails(t *testing.T) {
	t.Setenv("NAVIGATOR_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestParsedLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range tests {
		c := &Config{LogLevel: in}
		assert.Equal(t, want, c.ParsedLogLevel().String(), in)
	}
}
