package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leobrain/crawler/internal/crawl"
	"github.com/leobrain/crawler/internal/database"
	"github.com/leobrain/crawler/internal/id/uuid"
	"github.com/leobrain/crawler/internal/storage/memory"
)

// flakyBlobStore fails Put for paths containing a marker substring.
type flakyBlobStore struct {
	*memory.BlobStore
	failSubstring string
}

func (s *flakyBlobStore) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if s.failSubstring != "" && strings.Contains(path, s.failSubstring) {
		return "", errors.New("upload failed")
	}
	return s.BlobStore.Put(ctx, path, contentType, data)
}

// seqIDs hands out predictable content IDs.
type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

func newTestPipeline() (*Pipeline, *database.MemoryStore, *memory.BlobStore) {
	contents := database.NewMemoryStore()
	blobs := memory.NewBlobStore()
	p := New(Storage{Contents: contents, Blobs: blobs, IDs: uuid.New()}, zap.NewNop())
	return p, contents, blobs
}

func item(url string) crawl.Item {
	return crawl.Item{
		URL:    url,
		Title:  "Title for " + url,
		Body:   "body text",
		Source: "example",
	}
}

func TestProcessItemsPersistsBatch(t *testing.T) {
	t.Parallel()

	p, contents, blobs := newTestPipeline()

	n := p.ProcessItems(context.Background(), []crawl.Item{
		item("https://x/1"), item("https://x/2"), item("https://x/3"),
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, contents.Len())
	assert.Equal(t, 3, blobs.Len())

	rec, err := contents.FindByURL(context.Background(), "https://x/2")
	require.NoError(t, err)
	assert.Equal(t, "example", rec.Source)
	assert.Equal(t, "Title for https://x/2", rec.Title)
	assert.Equal(t, "en", rec.Language)
	assert.NotEmpty(t, rec.ContentID)
	assert.True(t, strings.HasPrefix(rec.BodyRef, "memory://example/"),
		"blob path is namespaced by source")
	assert.True(t, strings.HasSuffix(rec.BodyRef, ".txt"))
}

func TestProcessItemsIsIdempotent(t *testing.T) {
	t.Parallel()

	p, contents, blobs := newTestPipeline()
	batch := []crawl.Item{item("https://x/1"), item("https://x/2")}

	require.Equal(t, 2, p.ProcessItems(context.Background(), batch))
	assert.Equal(t, 0, p.ProcessItems(context.Background(), batch),
		"a second identical run persists nothing new")
	assert.Equal(t, 2, contents.Len())
	assert.Equal(t, 2, blobs.Len(), "no orphan blobs from the duplicate run")
}

func TestProcessItemsSkipsKnownURLs(t *testing.T) {
	t.Parallel()

	p, contents, _ := newTestPipeline()
	require.NoError(t, contents.Insert(context.Background(), crawl.ContentRecord{
		Source: "example", URL: "https://x/known", ContentID: "prior",
	}))

	n := p.ProcessItems(context.Background(), []crawl.Item{
		item("https://x/known"), item("https://x/new"),
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, contents.Len())
}

func TestProcessItemsIsolatesFailures(t *testing.T) {
	t.Parallel()

	contents := database.NewMemoryStore()
	blobs := &flakyBlobStore{BlobStore: memory.NewBlobStore(), failSubstring: "id-0003"}
	p := New(Storage{Contents: contents, Blobs: blobs, IDs: &seqIDs{}}, zap.NewNop())

	batch := []crawl.Item{
		item("https://x/1"), item("https://x/2"), item("https://x/3"),
		item("https://x/4"), item("https://x/5"),
	}
	n := p.ProcessItems(context.Background(), batch)
	assert.Equal(t, 4, n, "one failed upload never aborts the rest of the batch")
	assert.Equal(t, 4, contents.Len())

	_, err := contents.FindByURL(context.Background(), "https://x/3")
	assert.ErrorIs(t, err, database.ErrNotFound,
		"the item with the failed upload is not recorded")
}

func TestProcessItemsDropsEmptyURL(t *testing.T) {
	t.Parallel()

	p, contents, _ := newTestPipeline()
	n := p.ProcessItems(context.Background(), []crawl.Item{
		{Source: "example", Title: "no url", Body: "x"},
		item("https://x/ok"),
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, contents.Len())
}

func TestProcessItemsUsesItemLanguage(t *testing.T) {
	t.Parallel()

	p, contents, _ := newTestPipeline()
	it := item("https://x/de")
	it.Metadata = map[string]any{"lang": "de"}

	require.Equal(t, 1, p.ProcessItems(context.Background(), []crawl.Item{it}))
	rec, err := contents.FindByURL(context.Background(), "https://x/de")
	require.NoError(t, err)
	assert.Equal(t, "de", rec.Language)
}
