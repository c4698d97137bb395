package domain

import (
	"regexp"
	"strings"
)

// Header names used for credentials pulled out of free text.
const (
	HeaderAPIKey        = "x-api-key"
	HeaderAuthorization = "Authorization"
)

// Sentinel values that mark a credential as missing after resolution.
const (
	MissingBearer = "Bearer undefined"
	MissingValue  = "undefined"
)

// ExtractedCredential is a secret found in a user message.
type ExtractedCredential struct {
	Header string
	Value  string
}

type credentialPattern struct {
	re     *regexp.Regexp
	header string
	prefix string
}

const credentialValue = `["']?([A-Za-z0-9_\-.~+/=]{8,})["']?`

var credentialPatterns = []credentialPattern{
	{
		re:     regexp.MustCompile(`(?i)(?:\b(?:with|using|and)\s+)?(?:\b(?:my|the)\s+)?\b(?:x-api-key|api[ _-]?key|apikey)\b\s*(?:is\b|=|:)?\s*` + credentialValue),
		header: HeaderAPIKey,
	},
	{
		re:     regexp.MustCompile(`(?i)(?:\b(?:with|using|and)\s+)?(?:\b(?:my|the)\s+)?\b(?:bearer\s+token|access\s+token|auth(?:orization)?\s+token|token)\b\s*(?:is\b|=|:)?\s*` + credentialValue),
		header: HeaderAuthorization,
		prefix: "Bearer ",
	},
	{
		re:     regexp.MustCompile(`(?i)(?:\b(?:with|using|and)\s+)?\bbearer\s+` + credentialValue),
		header: HeaderAuthorization,
		prefix: "Bearer ",
	},
}

var spaceRunRe = regexp.MustCompile(`\s{2,}`)

// ExtractCredentials removes credential phrases from text and returns the
// cleaned text with the credentials found, in order of appearance per pattern.
func ExtractCredentials(text string) (string, []ExtractedCredential) {
	var creds []ExtractedCredential
	cleaned := text
	for _, p := range credentialPatterns {
		var b strings.Builder
		last := 0
		for _, loc := range p.re.FindAllStringSubmatchIndex(cleaned, -1) {
			value := cleaned[loc[2]:loc[3]]
			if !looksLikeSecret(value) {
				continue
			}
			creds = append(creds, ExtractedCredential{Header: p.header, Value: p.prefix + value})
			b.WriteString(cleaned[last:loc[0]])
			last = loc[1]
		}
		b.WriteString(cleaned[last:])
		cleaned = b.String()
	}
	if len(creds) == 0 {
		return text, nil
	}
	cleaned = spaceRunRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, " ,;:")
	cleaned = strings.ReplaceAll(cleaned, " ,", ",")
	cleaned = strings.ReplaceAll(cleaned, " .", ".")
	return cleaned, creds
}

// CredentialHeaders folds credentials into a header map; a later credential
// for the same header replaces an earlier one.
func CredentialHeaders(creds []ExtractedCredential) map[string]string {
	if len(creds) == 0 {
		return nil
	}
	out := make(map[string]string, len(creds))
	for _, c := range creds {
		out[c.Header] = c.Value
	}
	return out
}

// looksLikeSecret rejects ordinary words such as "api key management".
func looksLikeSecret(v string) bool {
	if len(v) >= 24 {
		return true
	}
	return strings.ContainsAny(v, "0123456789")
}

// IsMissingCredential reports whether a resolved header value is a placeholder
// rather than a usable secret.
func IsMissingCredential(v string) bool {
	t := strings.TrimSpace(v)
	return t == "" || t == MissingBearer || t == MissingValue
}
