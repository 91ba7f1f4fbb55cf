// Package sqlite persists pages and sessions in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// registers the pure-Go "sqlite" database/sql driver
	_ "github.com/glebarez/sqlite"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	url          TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	links        TEXT NOT NULL,
	backlinks    INTEGER NOT NULL,
	rank         INTEGER NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	archive_uri  TEXT NOT NULL DEFAULT '',
	crawled_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_session_id ON pages(session_id);
CREATE INDEX IF NOT EXISTS idx_pages_rank ON pages(rank DESC, url);
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	seed_url   TEXT NOT NULL,
	page_limit INTEGER NOT NULL,
	created_at TEXT NOT NULL
);`

const pageColumns = "url, session_id, title, content, links, backlinks, rank, content_hash, archive_uri, crawled_at"

// Config selects the database file. ":memory:" keeps everything in process.
type Config struct {
	Path string
}

// Store implements crawler.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ crawler.Store = (*Store)(nil)

// Open opens (creating if needed) the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.sqlite.path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertPage inserts page or replaces every column of the existing row.
func (s *Store) UpsertPage(ctx context.Context, page crawler.PageRecord) error {
	links := page.Links
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return crawler.WrapStoreError("upsert page", fmt.Errorf("marshal links: %w", err))
	}
	query := `
INSERT INTO pages (` + pageColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	session_id = excluded.session_id,
	title = excluded.title,
	content = excluded.content,
	links = excluded.links,
	backlinks = excluded.backlinks,
	rank = excluded.rank,
	content_hash = excluded.content_hash,
	archive_uri = excluded.archive_uri,
	crawled_at = excluded.crawled_at`
	_, err = s.db.ExecContext(ctx, query,
		page.URL,
		page.SessionID,
		page.Title,
		page.Content,
		string(linksJSON),
		page.BacklinkCount,
		page.Rank,
		page.ContentHash,
		page.ArchiveURI,
		formatTime(page.CrawledAt),
	)
	return crawler.WrapStoreError("upsert page", err)
}

// FindPage returns crawler.ErrPageNotFound when url has no row.
func (s *Store) FindPage(ctx context.Context, url string) (crawler.PageRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pageColumns+" FROM pages WHERE url = ?", url)
	page, err := scanPage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.PageRecord{}, crawler.ErrPageNotFound
		}
		return crawler.PageRecord{}, crawler.WrapStoreError("find page", err)
	}
	return page, nil
}

// PagesForSession lists the session's pages in rank order.
func (s *Store) PagesForSession(ctx context.Context, sessionID string) ([]crawler.PageRecord, error) {
	return s.queryPages(ctx, "list session pages",
		"SELECT "+pageColumns+" FROM pages WHERE session_id = ? ORDER BY rank DESC, url ASC", sessionID)
}

// CountPagesForSession counts rows owned by sessionID.
func (s *Store) CountPagesForSession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, crawler.WrapStoreError("count pages", err)
	}
	return n, nil
}

// AllPages lists every page in rank order.
func (s *Store) AllPages(ctx context.Context) ([]crawler.PageRecord, error) {
	return s.queryPages(ctx, "all pages", "SELECT "+pageColumns+" FROM pages ORDER BY rank DESC, url ASC")
}

// CreateSession returns crawler.ErrSessionExists for a duplicate id.
func (s *Store) CreateSession(ctx context.Context, session crawler.Session) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, seed_url, page_limit, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
		session.ID, session.SeedURL, session.PageLimit, formatTime(session.CreatedAt),
	)
	if err != nil {
		return crawler.WrapStoreError("create session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return crawler.WrapStoreError("create session", err)
	}
	if n == 0 {
		return crawler.ErrSessionExists
	}
	return nil
}

// GetSession returns crawler.ErrSessionNotFound for an unknown id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (crawler.Session, error) {
	var (
		session crawler.Session
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, seed_url, page_limit, created_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&session.ID, &session.SeedURL, &session.PageLimit, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Session{}, crawler.ErrSessionNotFound
		}
		return crawler.Session{}, crawler.WrapStoreError("get session", err)
	}
	if session.CreatedAt, err = parseTime(created); err != nil {
		return crawler.Session{}, crawler.WrapStoreError("get session", err)
	}
	return session, nil
}

// ClearAll deletes every page and session in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	for _, stmt := range []string{"DELETE FROM pages", "DELETE FROM sessions"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return crawler.WrapStoreError("clear all", err)
		}
	}
	return crawler.WrapStoreError("clear all", tx.Commit())
}

// Close closes the database handle.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) queryPages(ctx context.Context, op, query string, args ...any) ([]crawler.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crawler.WrapStoreError(op, err)
	}
	defer rows.Close()

	var pages []crawler.PageRecord
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, crawler.WrapStoreError(op, err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, crawler.WrapStoreError(op, err)
	}
	return pages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (crawler.PageRecord, error) {
	var (
		page      crawler.PageRecord
		linksJSON string
		crawledAt string
	)
	err := row.Scan(
		&page.URL,
		&page.SessionID,
		&page.Title,
		&page.Content,
		&linksJSON,
		&page.BacklinkCount,
		&page.Rank,
		&page.ContentHash,
		&page.ArchiveURI,
		&crawledAt,
	)
	if err != nil {
		return crawler.PageRecord{}, err
	}
	if err := json.Unmarshal([]byte(linksJSON), &page.Links); err != nil {
		return crawler.PageRecord{}, fmt.Errorf("decode links of %s: %w", page.URL, err)
	}
	if page.CrawledAt, err = parseTime(crawledAt); err != nil {
		return crawler.PageRecord{}, err
	}
	return page, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
