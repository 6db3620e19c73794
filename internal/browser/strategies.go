package browser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fieldStrategy attempts to pull one field out of a rendered item. Absence is
// a normal result, not an error: (value, false) means "this method found
// nothing, try the next one".
type fieldStrategy func(sel *goquery.Selection) (string, bool)

// firstMatch applies strategies in order and returns the first non-empty
// result. The page structure is not controlled by this system, so every field
// is read through an ordered chain of independent methods.
func firstMatch(sel *goquery.Selection, chain ...fieldStrategy) (string, bool) {
	for _, strategy := range chain {
		if value, ok := strategy(sel); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

var (
	statusPathPattern = regexp.MustCompile(`/([A-Za-z0-9_]+)/status(?:es)?/(\d+)`)
	longNumberPattern = regexp.MustCompile(`\d{15,}`)
)

// Identity extraction chain, most direct first.

// idFromPermalink reads the canonical status link.
func idFromPermalink(sel *goquery.Selection) (string, bool) {
	href, ok := sel.Find(`a[href*="/status/"]`).First().Attr("href")
	if !ok {
		return "", false
	}
	if m := statusPathPattern.FindStringSubmatch(href); m != nil {
		return m[2], true
	}
	return "", false
}

// idFromAnyLink scans every link-like attribute for a status-shaped path.
func idFromAnyLink(sel *goquery.Selection) (string, bool) {
	var id string
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := statusPathPattern.FindStringSubmatch(href); m != nil {
			id = m[2]
			return false
		}
		return true
	})
	return id, id != ""
}

// idFromTimestampLink looks at the link wrapping the item timestamp.
func idFromTimestampLink(sel *goquery.Selection) (string, bool) {
	parent := sel.Find("time").First().Parent()
	href, ok := parent.Attr("href")
	if !ok {
		return "", false
	}
	if m := statusPathPattern.FindStringSubmatch(href); m != nil {
		return m[2], true
	}
	if m := longNumberPattern.FindString(href); m != "" {
		return m, true
	}
	return "", false
}

// idFromAriaLabel scans auxiliary descriptive attributes for an embedded long
// numeric token.
func idFromAriaLabel(sel *goquery.Selection) (string, bool) {
	var id string
	sel.Find("[aria-labelledby], [aria-label], [data-item-id]").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		for _, attr := range []string{"data-item-id", "aria-labelledby", "aria-label"} {
			if v, ok := node.Attr(attr); ok {
				if m := longNumberPattern.FindString(v); m != "" {
					id = m
					return false
				}
			}
		}
		return true
	})
	return id, id != ""
}

// Body text chain.

func textFromTestID(sel *goquery.Selection) (string, bool) {
	text := strings.TrimSpace(sel.Find(`[data-testid="tweetText"]`).First().Text())
	return text, text != ""
}

func textFromLangDiv(sel *goquery.Selection) (string, bool) {
	text := strings.TrimSpace(sel.Find("div[lang]").First().Text())
	return text, text != ""
}

// textFromLongestSpan is the last resort: the longest span in the item.
func textFromLongestSpan(sel *goquery.Selection) (string, bool) {
	var longest string
	sel.Find("span").Each(func(_ int, span *goquery.Selection) {
		if t := strings.TrimSpace(span.Text()); len(t) > len(longest) {
			longest = t
		}
	})
	return longest, longest != ""
}

// Author chain. The handle strategies return the handle without the @.

func handleFromUserName(sel *goquery.Selection) (string, bool) {
	var handle string
	sel.Find(`[data-testid="User-Name"] span`).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		t := strings.TrimSpace(span.Text())
		if strings.HasPrefix(t, "@") {
			handle = strings.TrimPrefix(t, "@")
			return false
		}
		return true
	})
	return handle, handle != ""
}

func handleFromPermalink(sel *goquery.Selection) (string, bool) {
	href, ok := sel.Find(`a[href*="/status/"]`).First().Attr("href")
	if !ok {
		return "", false
	}
	if m := statusPathPattern.FindStringSubmatch(href); m != nil {
		return m[1], true
	}
	return "", false
}

func nameFromUserName(sel *goquery.Selection) (string, bool) {
	var name string
	sel.Find(`[data-testid="User-Name"] span`).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		t := strings.TrimSpace(span.Text())
		if t != "" && !strings.HasPrefix(t, "@") && t != "·" {
			name = t
			return false
		}
		return true
	})
	return name, name != ""
}

func nameFromAvatarAlt(sel *goquery.Selection) (string, bool) {
	alt, ok := sel.Find("img[alt]").First().Attr("alt")
	alt = strings.TrimSpace(alt)
	return alt, ok && alt != ""
}

// Metric chain: engagement counters are read from action-bar attributes first,
// then from nested text.

func metricFromTestID(testID string) fieldStrategy {
	return func(sel *goquery.Selection) (string, bool) {
		node := sel.Find(`[data-testid="` + testID + `"]`).First()
		if label, ok := node.Attr("aria-label"); ok {
			if n := firstNumber(label); n != "" {
				return n, true
			}
		}
		text := strings.TrimSpace(node.Find("span").First().Text())
		return text, text != ""
	}
}

func metricFromAriaScan(keyword string) fieldStrategy {
	return func(sel *goquery.Selection) (string, bool) {
		var value string
		sel.Find("[aria-label]").EachWithBreak(func(_ int, node *goquery.Selection) bool {
			label, _ := node.Attr("aria-label")
			lowered := strings.ToLower(label)
			if strings.Contains(lowered, keyword) {
				if n := firstNumber(label); n != "" {
					value = n
					return false
				}
			}
			return true
		})
		return value, value != ""
	}
}

var numberPattern = regexp.MustCompile(`[\d.,]+[KkMm]?`)

func firstNumber(s string) string {
	return numberPattern.FindString(s)
}

// Timestamp and verification.

func timestampAttr(sel *goquery.Selection) (string, bool) {
	v, ok := sel.Find("time[datetime]").First().Attr("datetime")
	return v, ok && v != ""
}

func verifiedBadgePresent(sel *goquery.Selection) bool {
	if sel.Find(`[data-testid="icon-verified"]`).Length() > 0 {
		return true
	}
	return sel.Find(`[aria-label="Verified account"]`).Length() > 0
}
