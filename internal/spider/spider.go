// Package spider holds the per-source adapters that turn seed requests and
// fetched responses into standardized items plus follow-up requests.
package spider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
)

// Kind selects a concrete spider implementation.
type Kind string

// Supported spider kinds.
const (
	KindRSS Kind = "rss"
)

// Config carries the validated per-source knobs a spider consumes.
type Config struct {
	Kind             Kind
	Source           string
	FeedURL          string
	MaxItems         int
	FetchFullContent bool
	UseRender        bool
	Language         string
}

// New builds a spider for the configured kind. An unknown kind is a
// configuration error and surfaces as a run-level failure.
func New(cfg Config, logger *zap.Logger) (crawl.Spider, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("spider config: source name is required")
	}
	switch cfg.Kind {
	case KindRSS:
		if cfg.FeedURL == "" {
			return nil, fmt.Errorf("spider config: feed_url is required for %q", cfg.Source)
		}
		return NewRSS(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown spider kind %q for source %q", cfg.Kind, cfg.Source)
	}
}
