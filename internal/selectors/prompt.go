package selectors

import (
	"fmt"
	"strings"
)

// MaxMarkupChars caps how much of the page is sent to the model.
const MaxMarkupChars = 15000

const systemPrompt = "You are a web scraping expert. Return only CSS selectors."

// Truncate keeps the first n characters of s. It counts runes, not bytes, so
// multi-byte text is never split mid-character.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func userPrompt(markup, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this HTML from %s and provide CSS and XPath selectors for:\n", domain)
	for _, k := range Keys {
		fmt.Fprintf(&b, "- %s\n", k)
	}
	b.WriteString("\nReturn only selectors in format:\n")
	b.WriteString("element: selector\n")
	b.WriteString("Prefer CSS selectors but use XPath when necessary.\n\n")
	b.WriteString("HTML: ")
	b.WriteString(Truncate(markup, MaxMarkupChars))
	return b.String()
}
