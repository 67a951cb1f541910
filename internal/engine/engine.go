// Package engine drives the frontier loop for one crawl run: pop a request,
// throttle, fetch or render, parse, accumulate items, append follow-ups, and
// hand the whole batch to the pipeline once the frontier drains.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/metrics"
	"github.com/leobrain/crawler/internal/render"
)

// State tracks the lifecycle of one crawl run.
type State string

// Run states.
const (
	StateSeeded     State = "seeded"
	StateProcessing State = "processing"
	StateDrained    State = "drained"
)

// Throttle is the anti-bot contract the engine invokes around each dispatch.
type Throttle interface {
	BeforeRequest(ctx context.Context, req crawl.Request) error
	AfterRequest(resp *crawl.Response, req crawl.Request)
}

// Result summarizes one drained run.
type Result struct {
	State             State
	RequestsAttempted int
	RequestsFailed    int
	ItemsExtracted    int
	ItemsPersisted    int
}

// Engine wires the fetcher, renderer, throttle, spider, and pipeline for
// sequential runs. One request is in flight at a time per run.
type Engine struct {
	fetcher  crawl.Fetcher
	renderer crawl.Renderer
	throttle Throttle
	pipeline crawl.Pipeline
	logger   *zap.Logger
}

// New constructs an Engine. renderer and throttle may be nil.
func New(
	fetcher crawl.Fetcher,
	renderer crawl.Renderer,
	throttle Throttle,
	pipeline crawl.Pipeline,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		fetcher:  fetcher,
		renderer: renderer,
		throttle: throttle,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Crawl runs the spider to completion. The frontier is FIFO: follow-ups are
// appended at the tail and processed strictly after the request that emitted
// them. No URL-level dedup happens here; adapters bound their own recursion.
func (e *Engine) Crawl(ctx context.Context, sp crawl.Spider) (Result, error) {
	frontier := sp.Seeds()
	result := Result{State: StateSeeded}
	var items []crawl.Item

	result.State = StateProcessing
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("run canceled: %w", err)
		}

		req := frontier[0]
		frontier = frontier[1:]
		result.RequestsAttempted++

		if e.throttle != nil {
			if err := e.throttle.BeforeRequest(ctx, req); err != nil {
				return result, fmt.Errorf("throttle: %w", err)
			}
		}

		resp, err := e.dispatch(ctx, req)
		if err != nil {
			// Retries already happened inside the fetcher. Soft failure.
			result.RequestsFailed++
			e.logger.Warn("fetch failed",
				zap.String("source", sp.Name()), zap.String("url", req.URL), zap.Error(err))
			continue
		}

		if e.throttle != nil {
			e.throttle.AfterRequest(resp, req)
		}

		newItems, followUps, parseErr := e.parse(sp, resp)
		if parseErr != nil {
			e.logger.Error("parse failed",
				zap.String("source", sp.Name()), zap.String("url", resp.URL), zap.Error(parseErr))
			continue
		}
		items = append(items, newItems...)
		frontier = append(frontier, followUps...)
		metrics.ObserveItemsExtracted(sp.Name(), len(newItems))
	}

	result.State = StateDrained
	result.ItemsExtracted = len(items)
	if len(items) > 0 {
		result.ItemsPersisted = e.pipeline.ProcessItems(ctx, items)
	}
	sp.Closed(string(StateDrained))

	e.logger.Info("run drained",
		zap.String("source", sp.Name()),
		zap.Int("requests", result.RequestsAttempted),
		zap.Int("failed_requests", result.RequestsFailed),
		zap.Int("items", result.ItemsExtracted),
		zap.Int("persisted", result.ItemsPersisted))
	return result, nil
}

// dispatch sends the request to the renderer when rendering was asked for and
// a real renderer is configured, else to the fetcher.
func (e *Engine) dispatch(ctx context.Context, req crawl.Request) (*crawl.Response, error) {
	if req.UseRender && e.renderer != nil {
		resp, err := e.renderer.Render(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, render.ErrNotConfigured) {
			return nil, err
		}
		// Noop renderer: fall through to the plain fetcher.
	}
	return e.fetcher.Fetch(ctx, req)
}

// parse routes the response to the full-content parser when the originating
// request carries the follow-up marker and the spider has the capability.
func (e *Engine) parse(sp crawl.Spider, resp *crawl.Response) ([]crawl.Item, []crawl.Request, error) {
	if resp.Request.MetaBool(crawl.MetaFetchFull) {
		if full, ok := sp.(crawl.FullContentParser); ok {
			return full.ParseFullContent(resp)
		}
	}
	return sp.Parse(resp)
}
