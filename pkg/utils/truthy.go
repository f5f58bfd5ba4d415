package utils

import "strings"

// TrueValue reports whether a configuration or header value spells a truthy
// boolean literal. Matches the set of literals the storage backend accepts in
// its own config files, so policy flags round-trip cleanly.
func TrueValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "t", "y":
		return true
	}
	return false
}
