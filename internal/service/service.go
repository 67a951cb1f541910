// Package service coordinates one crawl run end to end: build the spider for
// a configured source, assemble the engine, run it, and publish the
// completion event.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/antibot"
	"github.com/leobrain/crawler/internal/config"
	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/engine"
	"github.com/leobrain/crawler/internal/fetch"
	"github.com/leobrain/crawler/internal/metrics"
	"github.com/leobrain/crawler/internal/spider"
)

// Report is the outward summary of one crawl run.
type Report struct {
	Source            string    `json:"source"`
	Status            string    `json:"status"`
	RequestsAttempted int       `json:"requests_attempted"`
	RequestsFailed    int       `json:"requests_failed"`
	ItemsExtracted    int       `json:"items_extracted"`
	ItemsPersisted    int       `json:"items_persisted"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Error             string    `json:"error,omitempty"`
}

// Crawler owns the shared dependencies and runs sources on demand. Fetch
// clients and throttles are built per run so robots caches and rate limiter
// state never leak between runs.
type Crawler struct {
	cfg       config.Config
	pipeline  crawl.Pipeline
	renderer  crawl.Renderer
	publisher crawl.Publisher
	logger    *zap.Logger
}

// New assembles the crawler service. renderer and publisher may be nil.
func New(
	cfg config.Config,
	pipeline crawl.Pipeline,
	renderer crawl.Renderer,
	publisher crawl.Publisher,
	logger *zap.Logger,
) *Crawler {
	return &Crawler{
		cfg:       cfg,
		pipeline:  pipeline,
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
	}
}

// Run crawls the named source to completion and reports the outcome. Unknown
// sources and panics inside the frontier loop surface as run-level errors.
func (c *Crawler) Run(ctx context.Context, sourceName string) (report Report, err error) {
	report = Report{Source: sourceName, StartedAt: time.Now().UTC()}

	src, ok := c.cfg.Sources[sourceName]
	if !ok {
		report.Status = "unknown_source"
		return report, fmt.Errorf("unknown source %q", sourceName)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panic for %q: %v", sourceName, r)
			report.Status = "panic"
			report.Error = err.Error()
			c.logger.Error("run panicked",
				zap.String("source", sourceName), zap.Any("panic", r))
		}
		report.FinishedAt = time.Now().UTC()
		metrics.ObserveRun(sourceName, report.Status)
		c.publishReport(report)
	}()

	sp, err := spider.New(spider.Config{
		Kind:             spider.Kind(src.Spider),
		Source:           sourceName,
		FeedURL:          src.FeedURL,
		MaxItems:         src.MaxItems,
		FetchFullContent: src.FetchFullContent,
		UseRender:        src.UseRender,
		Language:         src.Language,
	}, c.logger)
	if err != nil {
		report.Status = "config_error"
		report.Error = err.Error()
		return report, err
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent:      c.cfg.HTTP.UserAgent,
		Timeout:        c.cfg.Timeout(),
		MaxRetries:     c.cfg.HTTP.MaxRetries,
		DefaultHeaders: mergeHeaders(c.cfg.HTTP.DefaultHeaders, src.Headers),
		RespectRobots:  c.cfg.HTTP.RespectRobots,
	}, c.logger)

	var throttle engine.Throttle
	if src.Throttled() {
		throttle = antibot.New(antibot.Config{
			QPS:    src.QPS,
			Delay:  src.Delay(),
			Jitter: src.Jitter,
		})
	}

	eng := engine.New(fetcher, c.renderer, throttle, c.pipeline, c.logger)

	result, err := eng.Crawl(ctx, sp)
	report.RequestsAttempted = result.RequestsAttempted
	report.RequestsFailed = result.RequestsFailed
	report.ItemsExtracted = result.ItemsExtracted
	report.ItemsPersisted = result.ItemsPersisted
	if err != nil {
		report.Status = "error"
		report.Error = err.Error()
		return report, err
	}

	report.Status = string(result.State)
	if result.RequestsAttempted > 0 && result.ItemsPersisted == 0 {
		c.logger.Warn("run persisted nothing",
			zap.String("source", sourceName),
			zap.Int("requests", result.RequestsAttempted),
			zap.Int("extracted", result.ItemsExtracted))
	}
	return report, nil
}

// Sources lists the configured source names.
func (c *Crawler) Sources() []string {
	names := make([]string, 0, len(c.cfg.Sources))
	for name := range c.cfg.Sources {
		names = append(names, name)
	}
	return names
}

// publishReport sends the completion event on a detached context, so a
// cancelled run still delivers its report. Publishing failures are logged and
// never fail the run itself.
func (c *Crawler) publishReport(report Report) {
	if c.publisher == nil || c.cfg.PubSub.TopicName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.publisher.Publish(ctx, c.cfg.PubSub.TopicName, report); err != nil {
		c.logger.Error("publish run report failed",
			zap.String("source", report.Source), zap.Error(err))
	}
}

// mergeHeaders overlays per-source headers on the global defaults.
func mergeHeaders(global, perSource map[string]string) map[string]string {
	if len(perSource) == 0 {
		return global
	}
	merged := make(map[string]string, len(global)+len(perSource))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range perSource {
		merged[k] = v
	}
	return merged
}
