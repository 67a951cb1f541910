package crawl

import (
	"context"
	"time"
)

// Fetcher performs one HTTP exchange, including retries and robots gating.
// A nil response with a nil error never happens; callers treat any error as a
// soft per-request failure.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Renderer executes a browser-driven fetch for JS-heavy pages. Close releases
// the underlying browser session; the owner must call it at shutdown.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Response, error)
	Close()
}

// Spider is the per-source adapter translating seeds and responses into items
// and follow-up requests.
type Spider interface {
	Name() string
	Seeds() []Request
	Parse(resp *Response) ([]Item, []Request, error)
	Closed(reason string)
}

// FullContentParser is an optional Spider capability for parsing secondary,
// per-article fetches.
type FullContentParser interface {
	ParseFullContent(resp *Response) ([]Item, []Request, error)
}

// Pipeline persists a batch of items, returning how many were newly stored.
type Pipeline interface {
	ProcessItems(ctx context.Context, items []Item) int
}

// BlobStore writes raw bodies and returns a storage reference.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ContentRecord is the metadata row persisted per unique item.
type ContentRecord struct {
	Source      string
	URL         string
	Title       string
	Author      string
	PublishedAt *time.Time
	BodyRef     string
	Language    string
	ContentID   string
	CreatedAt   time.Time
}

// ContentStore is the relational metadata collaborator. Insert must surface
// ErrDuplicateURL when the store's uniqueness constraint on URL fires.
type ContentStore interface {
	FindByURL(ctx context.Context, url string) (*ContentRecord, error)
	Insert(ctx context.Context, record ContentRecord) error
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces content identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
