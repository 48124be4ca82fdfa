package extract

import "time"

// dateLayouts are tried in order; the first layout that parses wins.
// Month-first layouts sit before day-first so ambiguous tokens such as
// 01/02/2024 resolve as January 2.
var dateLayouts = []string{
	"1/2/2006",
	"2/1/2006",
	"1-2-2006",
	"2-1-2006",
	"1/2/06",
	"2/1/06",
	"1-2-06",
	"2-1-06",
}

// NormalizeDate converts a free-form date token to canonical YYYY-MM-DD.
// When no layout parses, the token is returned unchanged; callers must
// treat a non-canonical result as a failed normalization, not an error.
func NormalizeDate(token string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return token
}
