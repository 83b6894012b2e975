// Package secrets masks provider credentials so they never reach logs, error
// text or exported files in the clear.
package secrets

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

var (
	// keyPatterns match the credential formats of the supported providers.
	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{10,}`), // Anthropic
		regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{10,}`),
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{20,}`), // Google
	}

	bearerPattern = regexp.MustCompile(`Bearer\s+([a-zA-Z0-9._-]+)`)
	headerPattern = regexp.MustCompile(`(?i)(x-api-key|x-goog-api-key)(["']?\s*[:=]\s*["']?)([a-zA-Z0-9._-]+)`)

	// credentialHeaders are masked by MaskHeaders.
	credentialHeaders = map[string]bool{
		"authorization":  true,
		"x-api-key":      true,
		"x-goog-api-key": true,
		"api-key":        true,
	}

	// tokenCounts look like credentials by name but are not.
	tokenCounts = map[string]bool{
		"max_tokens":            true,
		"max_completion_tokens": true,
		"input_tokens":          true,
		"output_tokens":         true,
		"prompt_tokens":         true,
		"completion_tokens":     true,
		"total_tokens":          true,
	}
)

// MaskKey shortens a key to its first and last four characters. Keys of eight
// characters or fewer become "***".
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// MaskString masks every provider key, bearer token and credential header
// value found in s.
func MaskString(s string) string {
	s = bearerPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := bearerPattern.FindStringSubmatch(match)
		return "Bearer " + MaskKey(sub[1])
	})
	s = headerPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := headerPattern.FindStringSubmatch(match)
		return sub[1] + sub[2] + MaskKey(sub[3])
	})
	for _, re := range keyPatterns {
		s = re.ReplaceAllStringFunc(s, MaskKey)
	}
	return s
}

// MaskHeaders returns a copy of h with credential values masked.
func MaskHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		masked := make([]string, len(values))
		for i, v := range values {
			if isCredentialHeader(name) {
				masked[i] = maskHeaderValue(v)
			} else {
				masked[i] = v
			}
		}
		out[name] = masked
	}
	return out
}

func isCredentialHeader(name string) bool {
	lower := strings.ToLower(name)
	return credentialHeaders[lower] || strings.Contains(lower, "secret") || strings.Contains(lower, "token")
}

func maskHeaderValue(v string) string {
	if scheme, token, ok := strings.Cut(v, " "); ok && strings.EqualFold(scheme, "bearer") {
		return scheme + " " + MaskKey(token)
	}
	return MaskKey(v)
}

// MaskJSON masks credential fields and embedded keys in a JSON document. Data
// that is not a JSON object is masked as text.
func MaskJSON(data []byte) []byte {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return []byte(MaskString(string(data)))
	}
	maskValue(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return []byte(MaskString(string(data)))
	}
	return out
}

func maskValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		for k, inner := range v {
			if s, ok := inner.(string); ok && isSensitiveField(k) {
				v[k] = MaskKey(s)
				continue
			}
			v[k] = maskValue(inner)
		}
		return v
	case []interface{}:
		for i := range v {
			v[i] = maskValue(v[i])
		}
		return v
	case string:
		return MaskString(v)
	default:
		return v
	}
}

func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	if tokenCounts[lower] {
		return false
	}
	switch {
	case credentialHeaders[lower]:
		return true
	case strings.Contains(lower, "apikey"), strings.Contains(lower, "api_key"):
		return true
	case lower == "secret", lower == "password", lower == "token":
		return true
	case strings.Contains(lower, "credential"):
		return true
	}
	return false
}

// KeySource describes where a provider key came from for display.
func KeySource(envVar string, fromEnv, stored bool) string {
	switch {
	case fromEnv:
		return "$" + envVar
	case stored:
		return "(saved)"
	default:
		return "(not configured)"
	}
}
