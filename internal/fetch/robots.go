package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsCache memoizes parsed robots.txt rules per domain for the lifetime of
// one fetch Client. Unreachable robots.txt caches an allow-all ruleset so the
// load is not retried on every request (fail open).
type robotsCache struct {
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	rules map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, logger *zap.Logger) *robotsCache {
	return &robotsCache{
		client: client,
		logger: logger,
		rules:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL under the domain's
// robots.txt rules.
func (c *robotsCache) Allowed(rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	data := c.rulesFor(u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, userAgent)
}

func (c *robotsCache) rulesFor(u *url.URL) *robotstxt.RobotsData {
	domain := u.Scheme + "://" + u.Host

	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.rules[domain]; ok {
		return data
	}

	data, err := c.load(domain)
	if err != nil {
		c.logger.Warn("robots.txt load failed, treating domain as unrestricted",
			zap.String("domain", domain), zap.Error(err))
		data = allowAll()
	}
	c.rules[domain] = data
	return data
}

func (c *robotsCache) load(domain string) (*robotstxt.RobotsData, error) {
	resp, err := c.client.Get(domain + "/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("get robots.txt: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	c.logger.Debug("loaded robots.txt", zap.String("domain", domain), zap.Int("status", resp.StatusCode))
	return data, nil
}

func allowAll() *robotstxt.RobotsData {
	data, err := robotstxt.FromBytes(nil)
	if err != nil {
		return &robotstxt.RobotsData{}
	}
	return data
}
