package crawler

import (
	"context"
	"time"
)

// PageStore persists page records keyed by URL.
type PageStore interface {
	// UpsertPage inserts the record or replaces every field of an existing one.
	UpsertPage(ctx context.Context, page PageRecord) error
	// FindPage returns ErrPageNotFound when no record exists for url.
	FindPage(ctx context.Context, url string) (PageRecord, error)
	PagesForSession(ctx context.Context, sessionID string) ([]PageRecord, error)
	CountPagesForSession(ctx context.Context, sessionID string) (int, error)
	// AllPages lists every record ordered by rank descending, then URL ascending.
	AllPages(ctx context.Context) ([]PageRecord, error)
}

// SessionStore persists crawl session metadata.
type SessionStore interface {
	// CreateSession returns ErrSessionExists when the id is already registered.
	CreateSession(ctx context.Context, session Session) error
	// GetSession returns ErrSessionNotFound when the id is unknown.
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

// Store is the persistence boundary used by the core.
type Store interface {
	PageStore
	SessionStore
	// ClearAll deletes every page and session.
	ClearAll(ctx context.Context) error
	Close(ctx context.Context) error
}

// PageMatcher is implemented by stores that can pre-filter pages whose
// content contains every word case-insensitively. Results keep the AllPages order.
type PageMatcher interface {
	MatchPages(ctx context.Context, words []string) ([]PageRecord, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl sessions.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for integrity and archive paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs.
type IDGenerator interface {
	NewID() (string, error)
}
