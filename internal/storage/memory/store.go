// Package memory keeps pages, sessions and archived blobs in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// Store is an in-memory crawler.Store for development and tests.
type Store struct {
	mu       sync.RWMutex
	pages    map[string]crawler.PageRecord
	sessions map[string]crawler.Session
}

var _ crawler.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		pages:    make(map[string]crawler.PageRecord),
		sessions: make(map[string]crawler.Session),
	}
}

// UpsertPage replaces any existing record for page.URL.
func (s *Store) UpsertPage(_ context.Context, page crawler.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page.URL] = crawler.ClonePage(page)
	return nil
}

// FindPage looks up a record by URL.
func (s *Store) FindPage(_ context.Context, url string) (crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[url]
	if !ok {
		return crawler.PageRecord{}, crawler.ErrPageNotFound
	}
	return crawler.ClonePage(page), nil
}

// PagesForSession lists the session's pages in rank order.
func (s *Store) PagesForSession(_ context.Context, sessionID string) ([]crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.PageRecord
	for _, page := range s.pages {
		if page.SessionID == sessionID {
			out = append(out, crawler.ClonePage(page))
		}
	}
	crawler.SortByRank(out)
	return out, nil
}

// CountPagesForSession counts records whose last writer was sessionID.
func (s *Store) CountPagesForSession(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, page := range s.pages {
		if page.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// AllPages returns copies of every record ordered by rank.
func (s *Store) AllPages(_ context.Context) ([]crawler.PageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.PageRecord, 0, len(s.pages))
	for _, page := range s.pages {
		out = append(out, crawler.ClonePage(page))
	}
	crawler.SortByRank(out)
	return out, nil
}

// CreateSession registers a new session.
func (s *Store) CreateSession(_ context.Context, session crawler.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return crawler.ErrSessionExists
	}
	s.sessions[session.ID] = session
	return nil
}

// GetSession fetches a session by ID.
func (s *Store) GetSession(_ context.Context, sessionID string) (crawler.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return crawler.Session{}, crawler.ErrSessionNotFound
	}
	return session, nil
}

// ClearAll drops every page and session.
func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[string]crawler.PageRecord)
	s.sessions = make(map[string]crawler.Session)
	return nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error {
	return nil
}
