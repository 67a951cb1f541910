package spider

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// cleanText strips markup from an HTML fragment or document and collapses
// whitespace to single spaces.
func cleanText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style, noscript").Remove()
	root := doc.Find("body")
	text := root.Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return strings.Join(strings.Fields(text), " ")
}

// firstText walks the selectors in priority order and returns the cleaned
// text of the first non-empty match.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return ""
}

// allText collects the cleaned text of every node matched by the first
// selector that matches anything.
func allText(doc *goquery.Document, selectors ...string) []string {
	for _, sel := range selectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return parts
		}
	}
	return nil
}

// publishedFromDoc applies the date selector cascade, preferring machine
// readable datetime attributes over element text.
func publishedFromDoc(doc *goquery.Document) *time.Time {
	candidates := []string{}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}
	candidates = append(candidates,
		doc.Find("time[datetime]").First().Text(),
		doc.Find(".published-date").First().Text(),
		doc.Find("[itemprop='datePublished']").First().Text(),
	)
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if ts, err := dateparse.ParseAny(raw); err == nil {
			return &ts
		}
	}
	return nil
}
