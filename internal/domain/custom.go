package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseServerURL reports whether s is an absolute http or https URL with a host.
func ParseServerURL(s string) (*url.URL, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// NewCustomServerDescriptor synthesizes a descriptor for a server that no
// registry knows about. Headers start empty; callers supply any they need.
func NewCustomServerDescriptor(name, serverURL string, source ToolSource) (ToolDescriptor, error) {
	u, ok := ParseServerURL(serverURL)
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("not an absolute http(s) URL: %q", serverURL)
	}
	return ToolDescriptor{
		Name:            name,
		ServerLabel:     fmt.Sprintf("Custom MCP Server (%s)", u.Hostname()),
		ServerURL:       strings.TrimSpace(serverURL),
		Headers:         map[string]HeaderValue{},
		RequireApproval: ApprovalNever,
		Source:          source,
	}, nil
}
