package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Role of a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior message. The core only reads turns.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// DiscoveredServer is a server URL that an earlier assistant turn announced,
// with the tool names listed under the announcement.
type DiscoveredServer struct {
	URL          string
	ToolNames    map[string]struct{}
	DiscoveredAt time.Time
}

// Has reports whether the announcement listed the exact tool name.
func (d DiscoveredServer) Has(name string) bool {
	_, ok := d.ToolNames[name]
	return ok
}

// SortedToolNames returns the announced names in lexical order.
func (d DiscoveredServer) SortedToolNames() []string {
	names := make([]string, 0, len(d.ToolNames))
	for n := range d.ToolNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConversationMemory is what a transcript teaches about servers and credentials.
// Servers are ordered oldest disclosure first.
type ConversationMemory struct {
	Servers     []DiscoveredServer
	Credentials []ExtractedCredential
}

// ServerFor returns the most recently announced server listing name.
func (m ConversationMemory) ServerFor(name string) (DiscoveredServer, bool) {
	for i := len(m.Servers) - 1; i >= 0; i-- {
		if m.Servers[i].Has(name) {
			return m.Servers[i], true
		}
	}
	return DiscoveredServer{}, false
}

// ServerTools maps each announced URL to its tool names.
func (m ConversationMemory) ServerTools() map[string][]string {
	out := make(map[string][]string, len(m.Servers))
	for _, s := range m.Servers {
		out[s.URL] = s.SortedToolNames()
	}
	return out
}

// CredentialHeaders folds extracted credentials into a header map, later wins.
func (m ConversationMemory) CredentialHeaders() map[string]string {
	return CredentialHeaders(m.Credentials)
}

const announcementPhrase = "available tools at"

var (
	announcementRe = regexp.MustCompile(`(?i)available tools at\s+(https?://\S+)`)
	bulletRe       = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	boldNameRe     = regexp.MustCompile(`^\*\*([^*]+)\*\*`)
	codeNameRe     = regexp.MustCompile("^`([^`]+)`")
	plainNameRe    = regexp.MustCompile(`^([A-Za-z0-9_.\-/]+)`)
)

// ScanConversation extracts server announcements from assistant turns and
// embedded credentials from user turns. A later announcement of the same URL
// replaces the earlier one.
func ScanConversation(turns []ConversationTurn) ConversationMemory {
	var mem ConversationMemory
	for _, turn := range turns {
		switch turn.Role {
		case RoleAssistant:
			for _, srv := range parseAnnouncements(turn) {
				mem.Servers = upsertServer(mem.Servers, srv)
			}
		case RoleUser:
			_, creds := ExtractCredentials(turn.Text)
			mem.Credentials = append(mem.Credentials, creds...)
		}
	}
	return mem
}

// ScanDiscoveredServers returns URL -> tool names for every announcement.
func ScanDiscoveredServers(turns []ConversationTurn) map[string]DiscoveredServer {
	mem := ScanConversation(turns)
	out := make(map[string]DiscoveredServer, len(mem.Servers))
	for _, s := range mem.Servers {
		out[s.URL] = s
	}
	return out
}

func upsertServer(servers []DiscoveredServer, srv DiscoveredServer) []DiscoveredServer {
	out := servers[:0]
	for _, s := range servers {
		if s.URL != srv.URL {
			out = append(out, s)
		}
	}
	return append(out, srv)
}

func parseAnnouncements(turn ConversationTurn) []DiscoveredServer {
	if !strings.Contains(strings.ToLower(turn.Text), announcementPhrase) {
		return nil
	}
	var (
		servers []DiscoveredServer
		current *DiscoveredServer
	)
	flush := func() {
		if current != nil {
			servers = append(servers, *current)
			current = nil
		}
	}
	for _, line := range strings.Split(turn.Text, "\n") {
		if m := announcementRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &DiscoveredServer{
				URL:          trimURL(m[1]),
				ToolNames:    map[string]struct{}{},
				DiscoveredAt: turn.Timestamp,
			}
			continue
		}
		if current == nil {
			continue
		}
		if name := bulletToolName(line); name != "" {
			current.ToolNames[name] = struct{}{}
		}
	}
	flush()
	return servers
}

func trimURL(u string) string {
	return strings.TrimRight(u, ":.,;)*`\"'")
}

func bulletToolName(line string) string {
	m := bulletRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	item := strings.TrimSpace(m[1])
	for _, re := range []*regexp.Regexp{boldNameRe, codeNameRe, plainNameRe} {
		if n := re.FindStringSubmatch(item); n != nil {
			return strings.TrimSpace(strings.TrimRight(n[1], ":"))
		}
	}
	return ""
}

// FormatTranscript renders the last max turns as plain "role: text" lines.
func FormatTranscript(turns []ConversationTurn, max int) string {
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, strings.TrimSpace(t.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatAnnouncement renders a function listing the way ScanConversation reads it.
func FormatAnnouncement(serverURL string, functions []ToolFunction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available tools at %s\n", serverURL)
	for _, fn := range functions {
		if fn.Description != "" {
			fmt.Fprintf(&b, "- **%s**: %s\n", fn.Name, firstLine(fn.Description))
		} else {
			fmt.Fprintf(&b, "- **%s**\n", fn.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
