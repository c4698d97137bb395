package github

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		want        FileRef
		expectError bool
	}{
		{
			name: "simple github URL",
			url:  "github://owner/repo/path/to/tools.yaml",
			want: FileRef{Owner: "owner", Repo: "repo", Path: "path/to/tools.yaml"},
		},
		{
			name: "github URL with ref",
			url:  "github://owner/repo/configs/navigator.yaml@v1.0",
			want: FileRef{Owner: "owner", Repo: "repo", Path: "configs/navigator.yaml", Ref: "v1.0"},
		},
		{
			name:        "invalid URL - not github",
			url:         "https://github.com/owner/repo/file.yaml",
			expectError: true,
		},
		{
			name:        "invalid URL - missing path",
			url:         "github://owner/repo",
			expectError: true,
		},
		{
			name:        "invalid URL - empty owner",
			url:         "github:///repo/file.yaml",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.url)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsGitHubURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"github://owner/repo/file.yaml", true},
		{"github://owner/repo/file.yaml@main", true},
		{"https://github.com/owner/repo/file.yaml", false},
		{"configs/navigator.yaml", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsGitHubURL(tt.url))
		})
	}
}

func TestClient_FetchFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/tools/contents/configs/navigator.yaml":
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
			assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, "tools: []\n")
		default:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "gh-token", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, err := c.FetchFile(context.Background(), "github://acme/tools/configs/navigator.yaml@main")
	require.NoError(t, err)
	assert.Equal(t, "tools: []\n", string(body))

	_, err = c.FetchFile(context.Background(), "github://acme/tools/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
