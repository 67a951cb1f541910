package spider

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
)

// fullContentThreshold is the body length below which a follow-up article
// fetch is emitted when full-content fetching is enabled.
const fullContentThreshold = 500

// RSS crawls a syndication feed, emitting one item per entry and optional
// follow-up requests for articles whose feed body is too short.
type RSS struct {
	source           string
	feedURL          string
	maxItems         int
	fetchFullContent bool
	useRender        bool
	language         string
	parser           *gofeed.Parser
	logger           *zap.Logger
}

// NewRSS builds an RSS spider.
func NewRSS(cfg Config, logger *zap.Logger) *RSS {
	return &RSS{
		source:           cfg.Source,
		feedURL:          cfg.FeedURL,
		maxItems:         cfg.MaxItems,
		fetchFullContent: cfg.FetchFullContent,
		useRender:        cfg.UseRender,
		language:         cfg.Language,
		parser:           gofeed.NewParser(),
		logger:           logger,
	}
}

// Name identifies the source this spider crawls.
func (s *RSS) Name() string { return s.source }

// Seeds returns the single feed-level request.
func (s *RSS) Seeds() []crawl.Request {
	return []crawl.Request{{
		URL:    s.feedURL,
		Method: crawl.MethodGet,
		Metadata: map[string]any{
			crawl.MetaSource: s.source,
			crawl.MetaIsFeed: true,
		},
	}}
}

// Parse dispatches on the originating request: feed-level responses are
// parsed as a feed, everything else as a full article page.
func (s *RSS) Parse(resp *crawl.Response) ([]crawl.Item, []crawl.Request, error) {
	if !resp.Request.MetaBool(crawl.MetaIsFeed) {
		return s.ParseFullContent(resp)
	}
	return s.parseFeed(resp)
}

// Closed is invoked when the spider will no longer be used.
func (s *RSS) Closed(reason string) {
	s.logger.Debug("spider closed", zap.String("source", s.source), zap.String("reason", reason))
}

func (s *RSS) parseFeed(resp *crawl.Response) ([]crawl.Item, []crawl.Request, error) {
	feed, err := s.parser.ParseString(resp.Text())
	if err != nil {
		return nil, nil, fmt.Errorf("parse feed %s: %w", resp.URL, err)
	}

	entries := feed.Items
	if s.maxItems > 0 && len(entries) > s.maxItems {
		entries = entries[:s.maxItems]
	}

	var (
		items    []crawl.Item
		requests []crawl.Request
	)
	for _, entry := range entries {
		item, ok := s.entryToItem(feed, entry)
		if !ok {
			continue
		}
		items = append(items, item)

		if s.fetchFullContent && item.URL != "" && len(item.Body) < fullContentThreshold {
			requests = append(requests, crawl.Request{
				URL:       item.URL,
				Method:    crawl.MethodGet,
				UseRender: s.useRender,
				Metadata: map[string]any{
					crawl.MetaSource:          s.source,
					crawl.MetaFetchFull:       true,
					crawl.MetaOriginalItemURL: item.URL,
				},
			})
		}
	}

	s.logger.Info("parsed feed",
		zap.String("source", s.source),
		zap.Int("items", len(items)),
		zap.Int("follow_ups", len(requests)))
	return items, requests, nil
}

// entryToItem converts one feed entry, skipping it on any per-entry problem
// so a single malformed entry never aborts the whole feed.
func (s *RSS) entryToItem(feed *gofeed.Feed, entry *gofeed.Item) (crawl.Item, bool) {
	if entry == nil || strings.TrimSpace(entry.Link) == "" {
		s.logger.Warn("skipping malformed feed entry", zap.String("source", s.source))
		return crawl.Item{}, false
	}

	title := entry.Title
	if title == "" {
		title = "No title"
	}

	body := entryContent(entry)
	if body != "" {
		body = cleanText(body)
	}

	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}

	meta := map[string]any{
		"feed_title": feed.Title,
		"feed_link":  feed.Link,
	}
	if s.language != "" {
		meta["lang"] = s.language
	}

	return crawl.Item{
		URL:         entry.Link,
		Title:       title,
		Body:        body,
		Source:      s.source,
		Author:      entryAuthor(entry),
		PublishedAt: published,
		Metadata:    meta,
	}, true
}

// entryContent prefers full content blocks over the summary/description.
func entryContent(entry *gofeed.Item) string {
	if strings.TrimSpace(entry.Content) != "" {
		return entry.Content
	}
	return entry.Description
}

// entryAuthor resolves the direct author field, falling back to the first
// structured author name.
func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// ParseFullContent extracts the article page fetched by a follow-up request.
func (s *RSS) ParseFullContent(resp *crawl.Response) ([]crawl.Item, []crawl.Request, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text()))
	if err != nil {
		return nil, nil, fmt.Errorf("parse article %s: %w", resp.URL, err)
	}
	doc.Find("script, style, noscript").Remove()

	title := firstText(doc, "h1", "title", ".article-title")
	if title == "" {
		title = "No title"
	}

	var body string
	if parts := allText(doc, "article", ".article-content", ".post-content", "main"); len(parts) > 0 {
		body = strings.Join(parts, " ")
	} else {
		body = cleanText(resp.Text())
	}

	originalURL := resp.Request.MetaString(crawl.MetaOriginalItemURL)
	if originalURL == "" {
		originalURL = resp.URL
	}

	meta := map[string]any{
		"fetched_full": true,
		"original_url": originalURL,
	}
	if s.language != "" {
		meta["lang"] = s.language
	}

	item := crawl.Item{
		URL:         resp.URL,
		Title:       title,
		Body:        body,
		Source:      s.source,
		Author:      firstText(doc, ".author", "[rel='author']", ".byline"),
		PublishedAt: publishedFromDoc(doc),
		Metadata:    meta,
	}

	s.logger.Debug("parsed full content",
		zap.String("source", s.source), zap.String("url", resp.URL))
	return []crawl.Item{item}, nil, nil
}
