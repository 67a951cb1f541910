package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
)

// stubFetcher maps URLs to canned responses or errors.
type stubFetcher struct {
	responses map[string]*crawl.Response
	errs      map[string]error
	calls     []string
}

func (f *stubFetcher) Fetch(_ context.Context, req crawl.Request) (*crawl.Response, error) {
	f.calls = append(f.calls, req.URL)
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		r := *resp
		r.Request = req
		return &r, nil
	}
	return nil, errors.New("unexpected url " + req.URL)
}

// stubSpider seeds one feed request and emits canned items plus follow-ups.
type stubSpider struct {
	seeds      []crawl.Request
	feedItems  []crawl.Item
	followUps  []crawl.Request
	pageItems  map[string][]crawl.Item
	parseErrs  map[string]error
	closedWith string
}

func (s *stubSpider) Name() string           { return "stub" }
func (s *stubSpider) Seeds() []crawl.Request { return s.seeds }

func (s *stubSpider) Parse(resp *crawl.Response) ([]crawl.Item, []crawl.Request, error) {
	if err, ok := s.parseErrs[resp.URL]; ok {
		return nil, nil, err
	}
	if items, ok := s.pageItems[resp.URL]; ok {
		return items, nil, nil
	}
	return s.feedItems, s.followUps, nil
}

func (s *stubSpider) Closed(reason string) { s.closedWith = reason }

// countingPipeline persists everything handed to it.
type countingPipeline struct {
	batches [][]crawl.Item
}

func (p *countingPipeline) ProcessItems(_ context.Context, items []crawl.Item) int {
	p.batches = append(p.batches, items)
	return len(items)
}

// recordingThrottle tracks call ordering relative to fetches.
type recordingThrottle struct {
	before int
	after  int
	err    error
}

func (t *recordingThrottle) BeforeRequest(context.Context, crawl.Request) error {
	t.before++
	return t.err
}

func (t *recordingThrottle) AfterRequest(*crawl.Response, crawl.Request) { t.after++ }

func okResponse(url string) *crawl.Response {
	return &crawl.Response{URL: url, Status: 200, Body: []byte("body")}
}

func TestCrawlDrainsFrontier(t *testing.T) {
	t.Parallel()

	// One feed seed that yields two items and one follow-up article, which
	// yields one more item.
	sp := &stubSpider{
		seeds: []crawl.Request{{URL: "https://feed"}},
		feedItems: []crawl.Item{
			{URL: "https://a", Source: "stub"},
			{URL: "https://b", Source: "stub"},
		},
		followUps: []crawl.Request{{URL: "https://article"}},
		pageItems: map[string][]crawl.Item{
			"https://article": {{URL: "https://article", Source: "stub"}},
		},
	}
	fetcher := &stubFetcher{responses: map[string]*crawl.Response{
		"https://feed":    okResponse("https://feed"),
		"https://article": okResponse("https://article"),
	}}
	pipe := &countingPipeline{}

	eng := New(fetcher, nil, nil, pipe, zap.NewNop())
	result, err := eng.Crawl(context.Background(), sp)
	require.NoError(t, err)

	assert.Equal(t, StateDrained, result.State)
	assert.Equal(t, 2, result.RequestsAttempted)
	assert.Equal(t, 0, result.RequestsFailed)
	assert.Equal(t, 3, result.ItemsExtracted)
	assert.Equal(t, 3, result.ItemsPersisted)
	assert.Equal(t, []string{"https://feed", "https://article"}, fetcher.calls,
		"follow-ups run strictly after the request that emitted them")
	require.Len(t, pipe.batches, 1, "items are persisted as a single batch after draining")
	assert.Len(t, pipe.batches[0], 3)
	assert.Equal(t, string(StateDrained), sp.closedWith)
}

func TestCrawlFetchFailureIsSoft(t *testing.T) {
	t.Parallel()

	sp := &stubSpider{
		seeds: []crawl.Request{{URL: "https://feed"}},
		feedItems: []crawl.Item{
			{URL: "https://a", Source: "stub"},
		},
		followUps: []crawl.Request{{URL: "https://bad"}, {URL: "https://good"}},
		pageItems: map[string][]crawl.Item{
			"https://good": {{URL: "https://good", Source: "stub"}},
		},
	}
	fetcher := &stubFetcher{
		responses: map[string]*crawl.Response{
			"https://feed": okResponse("https://feed"),
			"https://good": okResponse("https://good"),
		},
		errs: map[string]error{
			"https://bad": errors.New("retries exhausted"),
		},
	}
	pipe := &countingPipeline{}

	eng := New(fetcher, nil, nil, pipe, zap.NewNop())
	result, err := eng.Crawl(context.Background(), sp)
	require.NoError(t, err, "a failed request never fails the run")

	assert.Equal(t, 3, result.RequestsAttempted)
	assert.Equal(t, 1, result.RequestsFailed)
	assert.Equal(t, 2, result.ItemsExtracted)
	assert.Equal(t, string(StateDrained), sp.closedWith)
}

func TestCrawlParseFailureIsSoft(t *testing.T) {
	t.Parallel()

	sp := &stubSpider{
		seeds:     []crawl.Request{{URL: "https://feed"}},
		parseErrs: map[string]error{"https://feed": errors.New("broken xml")},
	}
	fetcher := &stubFetcher{responses: map[string]*crawl.Response{
		"https://feed": okResponse("https://feed"),
	}}
	pipe := &countingPipeline{}

	eng := New(fetcher, nil, nil, pipe, zap.NewNop())
	result, err := eng.Crawl(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ItemsExtracted)
	assert.Empty(t, pipe.batches, "nothing to persist when no items were extracted")
}

func TestCrawlThrottleWrapsEveryRequest(t *testing.T) {
	t.Parallel()

	sp := &stubSpider{
		seeds:     []crawl.Request{{URL: "https://feed"}},
		followUps: []crawl.Request{{URL: "https://article"}},
		pageItems: map[string][]crawl.Item{"https://article": nil},
	}
	fetcher := &stubFetcher{responses: map[string]*crawl.Response{
		"https://feed":    okResponse("https://feed"),
		"https://article": okResponse("https://article"),
	}}
	throttle := &recordingThrottle{}

	eng := New(fetcher, nil, throttle, &countingPipeline{}, zap.NewNop())
	_, err := eng.Crawl(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, 2, throttle.before)
	assert.Equal(t, 2, throttle.after)
}

func TestCrawlThrottleErrorFailsRun(t *testing.T) {
	t.Parallel()

	sp := &stubSpider{seeds: []crawl.Request{{URL: "https://feed"}}}
	throttle := &recordingThrottle{err: errors.New("context canceled")}

	eng := New(&stubFetcher{}, nil, throttle, &countingPipeline{}, zap.NewNop())
	_, err := eng.Crawl(context.Background(), sp)
	require.Error(t, err)
}

func TestCrawlStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	sp := &stubSpider{seeds: []crawl.Request{{URL: "https://feed"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := New(&stubFetcher{}, nil, nil, &countingPipeline{}, zap.NewNop())
	_, err := eng.Crawl(ctx, sp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
