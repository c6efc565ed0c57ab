package metrics

import "strings"

// norm keeps label cardinality sane: lowercase, never empty.
func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
