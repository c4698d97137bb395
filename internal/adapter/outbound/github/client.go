package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultAPIURL is the GitHub REST API root.
const DefaultAPIURL = "https://api.github.com"

// Scheme prefixes a GitHub file reference: github://owner/repo/path/to/file[@ref].
const Scheme = "github://"

// FileRef identifies one file in a repository.
type FileRef struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// IsGitHubURL reports whether s uses the github:// scheme.
func IsGitHubURL(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURL parses github://owner/repo/path/to/file[@ref].
func ParseURL(s string) (FileRef, error) {
	if !IsGitHubURL(s) {
		return FileRef{}, fmt.Errorf("invalid GitHub URL format: %s", s)
	}
	rest := strings.TrimPrefix(s, Scheme)

	var ref string
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest, ref = rest[:i], rest[i+1:]
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return FileRef{}, fmt.Errorf("invalid GitHub URL format: expected github://owner/repo/path/to/file")
	}
	return FileRef{Owner: parts[0], Repo: parts[1], Path: parts[2], Ref: ref}, nil
}

// Client fetches raw file contents through the GitHub contents API.
type Client struct {
	apiURL string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. token may be empty for public repositories.
func NewClient(apiURL, token string, client *http.Client, logger *slog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		client: client,
		logger: logger.With("component", "github_client"),
	}
}

// FetchFile returns the raw bytes of the referenced file.
func (c *Client) FetchFile(ctx context.Context, githubURL string) ([]byte, error) {
	ref, err := ParseURL(githubURL)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.apiURL,
		url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), escapePath(ref.Path))
	if ref.Ref != "" {
		u += "?ref=" + url.QueryEscape(ref.Ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub returned HTTP %d for %s: %s", resp.StatusCode, githubURL, strings.TrimSpace(string(body)))
	}
	c.logger.Debug("Fetched file from GitHub", slog.String("url", githubURL), slog.Int("size", len(body)))
	return body, nil
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
