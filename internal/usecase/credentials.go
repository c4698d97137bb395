package usecase

import (
	"os"
	"sort"
	"strings"

	"github.com/janzheng/mcp-navigator/internal/domain"
)

// EnvLookup reads one environment variable.
type EnvLookup func(name string) (string, bool)

// CredentialResolution is a ResolvedTool plus the header names whose
// credentials turned out to be missing.
type CredentialResolution struct {
	Tool               domain.ResolvedTool
	MissingCredentials []string
}

// CredentialResolver turns descriptors into ResolvedTools. It holds no state
// besides the env lookup and never mutates its inputs.
type CredentialResolver struct {
	lookup EnvLookup
}

// NewCredentialResolver returns a resolver reading from lookup, or from the
// process environment when lookup is nil.
func NewCredentialResolver(lookup EnvLookup) *CredentialResolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &CredentialResolver{lookup: lookup}
}

// Resolve materializes every header of desc. Precedence per header:
// caller value, then the environment, then the literal default. Caller
// headers the template does not name are added as given.
func (r *CredentialResolver) Resolve(desc domain.ToolDescriptor, callerHeaders map[string]string) CredentialResolution {
	headers := make(map[string]string, len(desc.Headers)+len(callerHeaders))
	used := make(map[string]bool, len(callerHeaders))

	for name, tmpl := range desc.Headers {
		if key, v, ok := lookupFold(callerHeaders, name); ok {
			headers[name] = v
			used[key] = true
			continue
		}
		headers[name] = r.resolveValue(tmpl)
	}
	for name, v := range callerHeaders {
		if used[name] {
			continue
		}
		headers[name] = v
	}

	var missing []string
	for name, v := range headers {
		if domain.IsMissingCredential(v) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	approval := desc.RequireApproval
	if approval == "" {
		approval = domain.ApprovalNever
	}
	return CredentialResolution{
		Tool: domain.ResolvedTool{
			Name:            desc.Name,
			Type:            domain.ToolTypeMCP,
			ServerLabel:     desc.ServerLabel,
			ServerURL:       desc.ServerURL,
			Headers:         headers,
			RequireApproval: approval,
		},
		MissingCredentials: missing,
	}
}

func (r *CredentialResolver) resolveValue(h domain.HeaderValue) string {
	switch h.Source {
	case domain.HeaderSourceEnv:
		if v, ok := r.lookup(h.EnvVar); ok && strings.TrimSpace(v) != "" {
			return h.Prefix + v
		}
		if h.Value != "" {
			return h.Prefix + h.Value
		}
		if h.Prefix != "" {
			return h.Prefix + domain.MissingValue
		}
		return ""
	default:
		return h.Value
	}
}

// lookupFold finds name in m ignoring case, exact key first.
func lookupFold(m map[string]string, name string) (string, string, bool) {
	if v, ok := m[name]; ok {
		return name, v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return k, v, true
		}
	}
	return "", "", false
}
