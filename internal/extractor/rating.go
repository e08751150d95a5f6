package extractor

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/review-scraper/internal/browser"
)

// Attributes tried, in order, before falling back to the element text.
var ratingAttributes = []string{"data-rating", "content"}

var digitRun = regexp.MustCompile(`[0-9]+`)

var errNoRating = errors.New("no numeric rating found")

// resolveRating reads the rating from the first attribute holding a number,
// else from the first run of digits in the visible text. "Rated 4 out of 5
// stars" resolves to 4.
func resolveRating(el browser.Element) (int, error) {
	for _, attr := range ratingAttributes {
		v, err := el.Attribute(attr)
		if err != nil {
			return 0, err
		}
		if n, ok := parseRatingNumber(v); ok {
			return n, nil
		}
	}

	text, err := el.Text()
	if err != nil {
		return 0, err
	}
	if n, ok := ratingFromText(text); ok {
		return n, nil
	}
	return 0, errNoRating
}

// parseRatingNumber accepts decimal values and truncates them toward zero.
func parseRatingNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func ratingFromText(text string) (int, bool) {
	run := digitRun.FindString(text)
	if run == "" {
		return 0, false
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return 0, false
	}
	return n, true
}
