// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// PageRecord is persisted once per distinct URL.
type PageRecord struct {
	URL           string    `json:"url"`
	SessionID     string    `json:"session_id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Links         []string  `json:"links"`
	BacklinkCount int       `json:"backlinks"`
	Rank          int       `json:"rank"`
	ContentHash   string    `json:"content_hash,omitempty"`
	ArchiveURI    string    `json:"archive_uri,omitempty"`
	CrawledAt     time.Time `json:"crawled_at"`
}

// Session binds one crawl invocation to its seed URL and page budget.
type Session struct {
	ID        string    `json:"session_id"`
	SeedURL   string    `json:"url"`
	PageLimit int       `json:"page_limit"`
	CreatedAt time.Time `json:"created_at"`
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// QueueItem wraps a session ready to be crawled.
type QueueItem struct {
	Session   Session
	Attempt   int
	Submitted int64
}
