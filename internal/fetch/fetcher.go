// Package fetch implements the HTTP fetcher: robots.txt gating, header
// merging, and a retry loop with exponential backoff around a single-exchange
// Colly collector.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/metrics"
)

// ErrRobotsBlocked marks a request dropped by robots.txt policy. It is a soft
// failure: the request is skipped, the run continues.
var ErrRobotsBlocked = errors.New("blocked by robots.txt")

const defaultMaxRetries = 3

// Config controls fetch behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	DefaultHeaders map[string]string
	RespectRobots  bool
}

// Client implements crawl.Fetcher. Each Client owns its robots cache, so one
// Client per crawl run keeps concurrent runs independent.
type Client struct {
	cfg    Config
	base   *colly.Collector
	robots *robotsCache
	logger *zap.Logger

	// sleep is a seam so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a fetch Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	robotsClient := &http.Client{Timeout: cfg.Timeout}

	return &Client{
		cfg:    cfg,
		base:   c,
		robots: newRobotsCache(robotsClient, logger.Named("robots")),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Fetch executes one request with retries. Robots-blocked and exhausted
// requests return a nil response with an error; callers log and move on.
// Repeated calls with the same request are independent fetch attempts.
func (c *Client) Fetch(ctx context.Context, req crawl.Request) (*crawl.Response, error) {
	target, err := buildTargetURL(req)
	if err != nil {
		return nil, err
	}

	userAgent := c.effectiveUserAgent(req)
	if c.cfg.RespectRobots && !c.robots.Allowed(target, userAgent) {
		metrics.ObserveRobotsBlocked()
		c.logger.Warn("url blocked by robots.txt", zap.String("url", target))
		return nil, fmt.Errorf("fetch %s: %w", target, ErrRobotsBlocked)
	}

	headers := c.mergeHeaders(req, userAgent)

	start := time.Now()
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		resp, status, exchErr := c.exchange(ctx, req, target, headers)
		if exchErr == nil {
			resp.Elapsed = time.Since(start)
			metrics.ObserveFetch("success", resp.Elapsed)
			return resp, nil
		}

		switch {
		case status == http.StatusTooManyRequests || status == http.StatusInternalServerError:
			wait := backoff(attempt)
			c.logger.Warn("retryable status, backing off",
				zap.String("url", target), zap.Int("status", status), zap.Duration("wait", wait))
			metrics.ObserveRetry()
			if err := c.sleep(ctx, wait); err != nil {
				metrics.ObserveFetch("canceled", 0)
				return nil, err
			}
		case status != 0:
			metrics.ObserveFetch("http_error", 0)
			c.logger.Error("non-retryable http status",
				zap.String("url", target), zap.Int("status", status))
			return nil, fmt.Errorf("fetch %s: status %d: %w", target, status, exchErr)
		default:
			// Transport-level failure: DNS, refused connection, timeout.
			if attempt == c.cfg.MaxRetries-1 {
				metrics.ObserveFetch("transport_error", 0)
				return nil, fmt.Errorf("fetch %s: %w", target, exchErr)
			}
			wait := backoff(attempt)
			c.logger.Warn("transport error, backing off",
				zap.String("url", target), zap.Duration("wait", wait), zap.Error(exchErr))
			metrics.ObserveRetry()
			if err := c.sleep(ctx, wait); err != nil {
				metrics.ObserveFetch("canceled", 0)
				return nil, err
			}
		}
	}

	metrics.ObserveFetch("exhausted", 0)
	return nil, fmt.Errorf("fetch %s: retries exhausted after %d attempts", target, c.cfg.MaxRetries)
}

// exchange runs a single HTTP attempt through a cloned collector. The status
// return is nonzero when the server answered with a non-2xx code.
func (c *Client) exchange(
	ctx context.Context,
	req crawl.Request,
	target string,
	headers http.Header,
) (*crawl.Response, int, error) {
	collector := c.base.Clone()

	var (
		result *crawl.Response
		status int
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		result = &crawl.Response{
			URL:      r.Request.URL.String(),
			Status:   r.StatusCode,
			Body:     append([]byte(nil), r.Body...),
			Headers:  flattenHeaders(*r.Headers),
			Request:  req,
			Metadata: map[string]any{},
		}
	})
	var hookErr error
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		hookErr = err
	})

	method := string(req.Method)
	if method == "" {
		method = string(crawl.MethodGet)
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, target, body, nil, headers.Clone())
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, status, fmt.Errorf("request failed: %w", err)
		}
		if hookErr != nil {
			return nil, status, fmt.Errorf("response failed: %w", hookErr)
		}
		if result == nil {
			return nil, status, errors.New("no response captured")
		}
		return result, status, nil
	}
}

func (c *Client) effectiveUserAgent(req crawl.Request) string {
	if ua, ok := req.Headers["User-Agent"]; ok && ua != "" {
		return ua
	}
	if c.cfg.UserAgent != "" {
		return c.cfg.UserAgent
	}
	return "*"
}

// mergeHeaders layers request headers over defaults; request values win. The
// resolved user agent always goes on the wire, so the agent the server sees
// matches the one checked against robots.txt.
func (c *Client) mergeHeaders(req crawl.Request, userAgent string) http.Header {
	headers := http.Header{}
	for k, v := range c.cfg.DefaultHeaders {
		headers.Set(k, v)
	}
	for k, v := range req.Headers {
		headers.Set(k, v)
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", userAgent)
	}
	return headers
}

func buildTargetURL(req crawl.Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse request url %q: %w", req.URL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("request url %q is not absolute", req.URL)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
