// Package extract runs ordered regex extraction tiers over scraped pages.
package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Strategy is one extraction tier. Extract must not panic on arbitrary input and
// returns nothing when its pattern does not apply.
type Strategy[T any] struct {
	Name    string
	Extract func(page string) []T
}

// Cascade tries strategies in order and returns the first non-empty result together
// with the name of the tier that produced it. It returns an empty name when every tier
// came up empty.
func Cascade[T any](logger zerolog.Logger, page string, strategies ...Strategy[T]) ([]T, string) {
	for _, s := range strategies {
		if out := s.Extract(page); len(out) > 0 {
			logger.Debug().Str("tier", s.Name).Int("count", len(out)).Msg("Extraction tier matched")
			return out, s.Name
		}
		logger.Debug().Str("tier", s.Name).Msg("Extraction tier found nothing")
	}
	return nil, ""
}

// FirstSubmatch returns the first capture group of re in s, or "" when there is no match.
func FirstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Unescape decodes the JSON string escapes and HTML entities that survive in text
// captured from embedded page data.
func Unescape(s string) string {
	if strings.ContainsRune(s, '\\') {
		if quoted := `"` + s + `"`; gjson.Valid(quoted) {
			s = gjson.Parse(quoted).String()
		}
	}
	return strings.TrimSpace(html.UnescapeString(s))
}
