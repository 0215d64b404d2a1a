package upstream

import (
	"regexp"
	"strings"
)

// MaxErrorMessageLen bounds persisted error messages.
const MaxErrorMessageLen = 500

var (
	// Credential-shaped tokens: API keys (sk-..., rk-...), bearer tokens, AWS key ids.
	reAPIKey = regexp.MustCompile(`\b(?:sk|rk|pk)-[A-Za-z0-9_-]{8,}\b`)
	reBearer = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`)
	reAWSKey = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	// Long hex/opaque identifiers leak internal resource names; 24+ hex chars is
	// never part of a user-actionable message.
	reLongHex = regexp.MustCompile(`\b[0-9a-fA-F]{24,}\b`)
)

// Sanitize redacts credential-shaped substrings and long opaque identifiers from
// msg and truncates it to MaxErrorMessageLen. It never returns an empty string
// for non-empty input.
func Sanitize(msg string) string {
	out := reAPIKey.ReplaceAllString(msg, "[redacted]")
	out = reBearer.ReplaceAllString(out, "[redacted]")
	out = reAWSKey.ReplaceAllString(out, "[redacted]")
	out = reLongHex.ReplaceAllString(out, "[redacted]")
	out = strings.TrimSpace(out)
	if out == "" && msg != "" {
		out = "[redacted]"
	}
	if len(out) > MaxErrorMessageLen {
		out = out[:MaxErrorMessageLen]
	}
	return out
}
