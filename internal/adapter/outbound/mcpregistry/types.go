package mcpregistry

import (
	"regexp"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// listResponse is one page of GET /v0/servers.
type listResponse struct {
	Servers  []serverItem `json:"servers"`
	Metadata metadata     `json:"metadata"`
}

type metadata struct {
	NextCursor      string `json:"nextCursor"`
	NextCursorSnake string `json:"next_cursor"`
}

func (m metadata) cursor() string {
	if m.NextCursor != "" {
		return m.NextCursor
	}
	return m.NextCursorSnake
}

// serverItem is either {"server": {...}, "_meta": {...}} or a flat entry.
type serverItem struct {
	Server *entry `json:"server"`
	entry
}

func (s serverItem) flatten() entry {
	if s.Server != nil {
		return *s.Server
	}
	return s.entry
}

type entry struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *repository `json:"repository"`
	Remotes     []remote    `json:"remotes"`
}

type repository struct {
	URL string `json:"url"`
}

type remote struct {
	Type    string         `json:"type"`
	URL     string         `json:"url"`
	Headers []remoteHeader `json:"headers"`
}

type remoteHeader struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired"`
	IsSecret   bool   `json:"isSecret"`
}

// preferredRemote picks streamable-http, then sse, then whatever has a URL.
func (e entry) preferredRemote() (remote, bool) {
	for _, want := range []string{"streamable-http", "sse", ""} {
		for _, r := range e.Remotes {
			if r.URL == "" {
				continue
			}
			if want == "" || strings.EqualFold(r.Type, want) {
				return r, true
			}
		}
	}
	return remote{}, false
}

var labelRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// label derives a server label from the last path segment of the name.
func label(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	l := strings.Trim(labelRe.ReplaceAllString(name, "_"), "_")
	if l == "" {
		return "mcp_server"
	}
	return l
}

func (e entry) descriptor() domain.ToolDescriptor {
	r, _ := e.preferredRemote()
	desc := domain.ToolDescriptor{
		Name:            e.Name,
		ServerLabel:     label(e.Name),
		ServerURL:       r.URL,
		RequireApproval: domain.ApprovalNever,
		Source:          domain.ToolSourcePublic,
		RegistryInfo: &domain.RegistryInfo{
			Name:        e.Name,
			Version:     e.Version,
			Description: e.Description,
			RemoteType:  r.Type,
		},
	}
	if e.Repository != nil {
		desc.RegistryInfo.Repository = e.Repository.URL
	}
	for _, h := range r.Headers {
		if h.Name == "" {
			continue
		}
		if desc.Headers == nil {
			desc.Headers = map[string]domain.HeaderValue{}
		}
		desc.Headers[h.Name] = domain.Literal("")
	}
	return desc
}
