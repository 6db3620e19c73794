package browser

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// itemSelector matches one rendered post in the listing or detail view.
const itemSelector = "article"

// extracted is the raw field set pulled from one rendered item. ExternalID
// may be empty, in which case the item is a candidate for deferred detail
// extraction.
type extracted struct {
	ExternalID   string
	Text         string
	AuthorName   string
	AuthorHandle string
	Verified     bool
	LikeCount    int
	ReplyCount   int
	ShareCount   int
	PublishedAt  time.Time
}

// extractItems parses a rendered page snapshot and extracts every item in
// document order.
func extractItems(html string) ([]extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var items []extracted
	doc.Find(itemSelector).Each(func(_ int, sel *goquery.Selection) {
		items = append(items, extractOne(sel))
	})
	return items, nil
}

// pageText returns the visible text of a snapshot, used for rate-limit
// marker scans.
func pageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Text()
}

// extractOne runs the per-field fallback chains over one item. Field chains
// are independent: a miss on one field never aborts the others.
func extractOne(sel *goquery.Selection) extracted {
	var item extracted

	item.ExternalID, _ = firstMatch(sel,
		idFromPermalink,
		idFromAnyLink,
		idFromTimestampLink,
		idFromAriaLabel,
	)
	item.Text, _ = firstMatch(sel,
		textFromTestID,
		textFromLangDiv,
		textFromLongestSpan,
	)
	item.AuthorHandle, _ = firstMatch(sel,
		handleFromUserName,
		handleFromPermalink,
	)
	item.AuthorName, _ = firstMatch(sel,
		nameFromUserName,
		nameFromAvatarAlt,
	)
	item.Verified = verifiedBadgePresent(sel)

	item.ReplyCount = parseCount(firstOr(sel, metricFromTestID("reply"), metricFromAriaScan("repl")))
	item.ShareCount = parseCount(firstOr(sel, metricFromTestID("retweet"), metricFromAriaScan("repost")))
	item.LikeCount = parseCount(firstOr(sel, metricFromTestID("like"), metricFromAriaScan("like")))

	if ts, ok := timestampAttr(sel); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			item.PublishedAt = parsed
		}
	}
	return item
}

func firstOr(sel *goquery.Selection, chain ...fieldStrategy) string {
	value, _ := firstMatch(sel, chain...)
	return value
}

// parseCount converts a rendered counter ("1,234", "1.2K", "3M") to an int.
// Unparseable input is zero; counters are best-effort data, never an error.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}

// toRawItem converts an extracted item collected under a search keyword.
func toRawItem(item extracted, keyword string, acquiredAt time.Time) pipeline.RawItem {
	return pipeline.RawItem{
		Platform:      pipeline.PlatformTwitter,
		ExternalID:    item.ExternalID,
		AuthorName:    item.AuthorName,
		AuthorHandle:  item.AuthorHandle,
		Verified:      item.Verified,
		Text:          item.Text,
		LikeCount:     item.LikeCount,
		ReplyCount:    item.ReplyCount,
		ShareCount:    item.ShareCount,
		PublishedAt:   item.PublishedAt,
		AcquiredAt:    acquiredAt,
		SourceKeyword: keyword,
	}
}
