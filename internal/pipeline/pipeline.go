// Package pipeline deduplicates and persists extracted items: a metadata
// record in the content store plus the raw body in the blob store.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/database"
	"github.com/leobrain/crawler/internal/metrics"
)

const defaultLanguage = "en"

// Storage groups the external persistence collaborators.
type Storage struct {
	Contents crawl.ContentStore
	Blobs    crawl.BlobStore
	IDs      crawl.IDGenerator
}

// Pipeline implements crawl.Pipeline. All storage handles are injected; the
// pipeline holds no global state.
type Pipeline struct {
	storage Storage
	logger  *zap.Logger
}

// New builds a Pipeline.
func New(storage Storage, logger *zap.Logger) *Pipeline {
	return &Pipeline{storage: storage, logger: logger}
}

// ProcessItems persists each item independently and returns how many were
// newly stored. Duplicates are skipped, failures are item-scoped; neither
// aborts the remaining items.
func (p *Pipeline) ProcessItems(ctx context.Context, items []crawl.Item) int {
	success := 0
	for _, item := range items {
		if p.processItem(ctx, item) {
			success++
		}
	}
	return success
}

// processItem runs the exists-check, blob upload, and metadata insert for one
// item. The exists-check is a fast path only; the store's URL uniqueness
// constraint is the final arbiter under concurrent writers.
func (p *Pipeline) processItem(ctx context.Context, item crawl.Item) bool {
	if item.URL == "" {
		p.logger.Warn("dropping item without url", zap.String("source", item.Source))
		metrics.ObserveItemOutcome(item.Source, "failed")
		return false
	}

	_, err := p.storage.Contents.FindByURL(ctx, item.URL)
	switch {
	case err == nil:
		p.logger.Debug("content already exists", zap.String("url", item.URL))
		metrics.ObserveItemOutcome(item.Source, "skipped")
		return false
	case !errors.Is(err, database.ErrNotFound):
		p.logger.Error("content lookup failed", zap.String("url", item.URL), zap.Error(err))
		metrics.ObserveItemOutcome(item.Source, "failed")
		return false
	}

	contentID, err := p.storage.IDs.NewID()
	if err != nil {
		p.logger.Error("content id generation failed", zap.String("url", item.URL), zap.Error(err))
		metrics.ObserveItemOutcome(item.Source, "failed")
		return false
	}

	path := fmt.Sprintf("%s/%s.txt", item.Source, contentID)
	bodyRef, err := p.storage.Blobs.Put(ctx, path, "text/plain; charset=utf-8", []byte(item.Body))
	if err != nil {
		p.logger.Error("blob upload failed",
			zap.String("url", item.URL), zap.String("path", path), zap.Error(err))
		metrics.ObserveItemOutcome(item.Source, "failed")
		return false
	}

	record := crawl.ContentRecord{
		Source:      item.Source,
		URL:         item.URL,
		Title:       item.Title,
		Author:      item.Author,
		PublishedAt: item.PublishedAt,
		BodyRef:     bodyRef,
		Language:    itemLanguage(item),
		ContentID:   contentID,
	}
	if err := p.storage.Contents.Insert(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateURL) {
			// A concurrent run won the insert race. Expected, frequent.
			p.logger.Debug("duplicate url on insert", zap.String("url", item.URL))
			metrics.ObserveItemOutcome(item.Source, "skipped")
			return false
		}
		p.logger.Error("metadata insert failed", zap.String("url", item.URL), zap.Error(err))
		metrics.ObserveItemOutcome(item.Source, "failed")
		return false
	}

	p.logger.Info("stored item",
		zap.String("url", item.URL),
		zap.String("content_id", contentID),
		zap.String("body_ref", bodyRef))
	metrics.ObserveItemOutcome(item.Source, "persisted")
	return true
}

func itemLanguage(item crawl.Item) string {
	if lang, ok := item.Metadata["lang"].(string); ok && lang != "" {
		return lang
	}
	return defaultLanguage
}
