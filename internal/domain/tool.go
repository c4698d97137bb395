package domain

// ApprovalNever is the only approval mode this system sends upstream.
const ApprovalNever = "never"

// ToolTypeMCP is the tool type the Responses API expects for remote MCP servers.
const ToolTypeMCP = "mcp"

// ToolSource records where a descriptor came from during resolution.
type ToolSource string

const (
	ToolSourceLocal      ToolSource = "local"      // static Tool Registry Store
	ToolSourceURL        ToolSource = "url"        // tool name was itself a server URL
	ToolSourceDiscovered ToolSource = "discovered" // announced in an earlier conversation turn
	ToolSourcePublic     ToolSource = "public"     // public MCP registry
)

// HeaderSource tags the variant held by a HeaderValue.
type HeaderSource string

const (
	HeaderSourceLiteral HeaderSource = "literal"
	HeaderSourceEnv     HeaderSource = "env"
)

// HeaderValue is a header template entry: either a literal string or a
// reference to an environment variable resolved at call time.
//
// For env references, Value acts as the literal default used when the
// variable is unset, and Prefix (e.g. "Bearer ") is prepended to whatever
// value is finally chosen.
type HeaderValue struct {
	Source HeaderSource `json:"source"`
	Value  string       `json:"value,omitempty"`
	EnvVar string       `json:"env,omitempty"`
	Prefix string       `json:"prefix,omitempty"`
}

// Literal returns a HeaderValue holding a fixed string.
func Literal(v string) HeaderValue {
	return HeaderValue{Source: HeaderSourceLiteral, Value: v}
}

// EnvironmentRef returns a HeaderValue read from the named environment
// variable, with an optional prefix such as "Bearer ".
func EnvironmentRef(name, prefix string) HeaderValue {
	return HeaderValue{Source: HeaderSourceEnv, EnvVar: name, Prefix: prefix}
}

// WithDefault sets the literal fallback used when an env reference is unset.
func (h HeaderValue) WithDefault(v string) HeaderValue {
	h.Value = v
	return h
}

// ToolMeta is documentation-only metadata. It never leaves the process.
type ToolMeta struct {
	Description    string   `json:"description,omitempty"`
	ExampleQueries []string `json:"example_queries,omitempty"`
	UseCases       []string `json:"use_cases,omitempty"`
}

// RegistryInfo describes the public catalog entry a descriptor was built from.
type RegistryInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	RemoteType  string `json:"remote_type,omitempty"`
	Repository  string `json:"repository,omitempty"`
}

// ToolDescriptor describes how to reach and authenticate to one remote MCP server.
type ToolDescriptor struct {
	Name            string                 `json:"name"`
	ServerLabel     string                 `json:"server_label"`
	ServerURL       string                 `json:"server_url"`
	Headers         map[string]HeaderValue `json:"headers,omitempty"`
	RequireApproval string                 `json:"require_approval"`
	Meta            *ToolMeta              `json:"meta,omitempty"`
	RegistryInfo    *RegistryInfo          `json:"registry_info,omitempty"`
	Source          ToolSource             `json:"source"`
}

// Clone returns a deep copy so callers can never mutate shared registry state.
func (d ToolDescriptor) Clone() ToolDescriptor {
	out := d
	if d.Headers != nil {
		out.Headers = make(map[string]HeaderValue, len(d.Headers))
		for k, v := range d.Headers {
			out.Headers[k] = v
		}
	}
	if d.Meta != nil {
		m := *d.Meta
		m.ExampleQueries = append([]string(nil), d.Meta.ExampleQueries...)
		m.UseCases = append([]string(nil), d.Meta.UseCases...)
		out.Meta = &m
	}
	if d.RegistryInfo != nil {
		ri := *d.RegistryInfo
		out.RegistryInfo = &ri
	}
	return out
}

// Description returns the best available human description of the tool.
func (d ToolDescriptor) Description() string {
	if d.Meta != nil && d.Meta.Description != "" {
		return d.Meta.Description
	}
	if d.RegistryInfo != nil {
		return d.RegistryInfo.Description
	}
	return ""
}

// ResolvedTool is the only tool shape sent to the upstream Responses API:
// every header is a literal and documentation fields are gone.
type ResolvedTool struct {
	Name            string            `json:"-"`
	Type            string            `json:"type"`
	ServerLabel     string            `json:"server_label"`
	ServerURL       string            `json:"server_url"`
	Headers         map[string]string `json:"headers,omitempty"`
	RequireApproval string            `json:"require_approval"`
}

// ToolFunction is one callable function exposed by a remote MCP server.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolCandidate is a tool offered to the model during selection.
type ToolCandidate struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Source      ToolSource `json:"source"`
	ServerURL   string     `json:"server_url,omitempty"`
}
