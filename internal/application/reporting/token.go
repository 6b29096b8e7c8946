// Package reporting renders threat model reports and exports them to
// object storage.
package reporting

import (
	"regexp"
	"strconv"
	"strings"
)

// tokenRe matches {{TOKEN}} and {{TOKEN:arg}} placeholders.  Whitespace
// inside the braces is tolerated; see normalizeBraces for the repair of
// split braces.
var tokenRe = regexp.MustCompile(`\{\{\s*([A-Z0-9_]+)\s*(?::\s*([^{}]*?)\s*)?\}\}`)

// normalizeBraces repairs "{ {" and "} }" sequences that word processors
// and LLMs introduce into templates, so the token pattern still matches.
func normalizeBraces(s string) string {
	s = strings.ReplaceAll(s, "{ {", "{{")
	s = strings.ReplaceAll(s, "} }", "}}")
	return s
}

// ResolveTokens substitutes {{TOKEN}} placeholders from values.  The
// SEVERITY_BADGE macro takes a risk score argument and renders its severity
// label.  Unknown tokens are left in place so broken templates stay visible
// in the output instead of silently losing content.
func ResolveTokens(template string, values map[string]string) string {
	template = normalizeBraces(template)
	return tokenRe.ReplaceAllStringFunc(template, func(match string) string {
		groups := tokenRe.FindStringSubmatch(match)
		name, arg := groups[1], groups[2]

		if name == "SEVERITY_BADGE" {
			score, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				return match
			}
			return SeverityBadge(score)
		}
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

// SeverityBadge maps a risk score to its severity label.
func SeverityBadge(score int) string {
	switch {
	case score >= 80:
		return "Critical"
	case score >= 60:
		return "High"
	case score >= 40:
		return "Medium"
	default:
		return "Low"
	}
}
