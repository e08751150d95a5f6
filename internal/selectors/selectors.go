// Package selectors turns page markup into a SelectorMap by asking a language
// model where the review elements live.
package selectors

import (
	"errors"
	"fmt"
	"strings"
)

// Logical element names. The model is asked to answer with exactly these keys.
const (
	KeyContainer = "Review container"
	KeyWrapper   = "Individual review wrapper"
	KeyTitle     = "Review title"
	KeyBody      = "Review body"
	KeyRating    = "Rating element"
	KeyReviewer  = "Reviewer name"
	KeyNextPage  = "Next page button"
)

// Keys lists the logical elements in prompt order.
var Keys = []string{
	KeyContainer,
	KeyWrapper,
	KeyTitle,
	KeyBody,
	KeyRating,
	KeyReviewer,
	KeyNextPage,
}

var ErrMissingSelector = errors.New("missing selector")

// SelectorMap maps logical element names to CSS or XPath selectors. It is
// built once per request and only read afterwards.
type SelectorMap map[string]string

// Get returns the selector for key, or ErrMissingSelector.
func (m SelectorMap) Get(key string) (string, error) {
	if s, ok := m[key]; ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMissingSelector, key)
}

// Missing returns the logical keys that have no selector.
func (m SelectorMap) Missing() []string {
	var missing []string
	for _, k := range Keys {
		if _, err := m.Get(k); err != nil {
			missing = append(missing, k)
		}
	}
	return missing
}

// Parse reads "element: selector" lines. Each line is split on its first
// colon; lines without one are skipped and later keys overwrite earlier ones.
func Parse(reply string) SelectorMap {
	m := make(SelectorMap)
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		m[key] = strings.TrimSpace(value)
	}
	return m
}
