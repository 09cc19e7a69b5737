package router

import "strings"

// PrefixMatcher matches path prefixes on segment boundaries, so "/api/social"
// matches "/api/social" and "/api/social/x" but not "/api/socialx".
type PrefixMatcher struct {
	prefix string
}

// NewPrefixMatcher creates a prefix matcher. A trailing slash is ignored.
func NewPrefixMatcher(prefix string) PrefixMatcher {
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return PrefixMatcher{prefix: prefix}
}

// Match reports whether path falls under the prefix.
func (m PrefixMatcher) Match(path string) bool {
	_, ok := m.Strip(path)
	return ok
}

// Strip removes the prefix from path. The remainder always starts with "/".
func (m PrefixMatcher) Strip(path string) (string, bool) {
	if m.prefix == "" || !strings.HasPrefix(path, m.prefix) {
		return "", false
	}
	if m.prefix == "/" {
		return path, true
	}

	rest := path[len(m.prefix):]
	switch {
	case rest == "":
		return "/", true
	case rest[0] == '/':
		return rest, true
	default:
		return "", false
	}
}

// Pattern returns the prefix.
func (m PrefixMatcher) Pattern() string {
	return m.prefix
}
