package browser

import "strings"

const xpathPrefix = "xpath="

// XPath reports whether selector is an XPath expression and returns the bare
// expression. Selectors starting with "/" or "(" or carrying an explicit
// "xpath=" prefix are treated as XPath, everything else as CSS.
func XPath(selector string) (string, bool) {
	s := strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(s, xpathPrefix):
		return strings.TrimPrefix(s, xpathPrefix), true
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "("):
		return s, true
	}
	return "", false
}
