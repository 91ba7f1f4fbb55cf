// Package postgres persists pages and sessions in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/websearch/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	PagesTable      string
	SessionsTable   string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements crawler.Store and crawler.PageMatcher on Postgres.
type Store struct {
	pool     pool
	pages    string
	sessions string
}

var (
	_ crawler.Store       = (*Store)(nil)
	_ crawler.PageMatcher = (*Store)(nil)
)

// New connects to Postgres using cfg and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.PagesTable, cfg.SessionsTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, pagesTable, sessionsTable string) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if pagesTable == "" {
		pagesTable = "pages"
	}
	if sessionsTable == "" {
		sessionsTable = "sessions"
	}
	for _, table := range []string{pagesTable, sessionsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: p, pages: pagesTable, sessions: sessionsTable}, nil
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	url          TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	links        TEXT[] NOT NULL DEFAULT '{}',
	backlinks    INTEGER NOT NULL,
	rank         INTEGER NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	archive_uri  TEXT NOT NULL DEFAULT '',
	crawled_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_session_id_idx ON %[1]s (session_id);
CREATE INDEX IF NOT EXISTS %[1]s_rank_idx ON %[1]s (rank DESC, url);
CREATE TABLE IF NOT EXISTS %[2]s (
	id         TEXT PRIMARY KEY,
	seed_url   TEXT NOT NULL,
	page_limit INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`, s.pages, s.sessions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return crawler.WrapStoreError("migrate", err)
	}
	return nil
}

const pageColumns = "url, session_id, title, content, links, backlinks, rank, content_hash, archive_uri, crawled_at"

// UpsertPage inserts page or overwrites every column of the existing row.
func (s *Store) UpsertPage(ctx context.Context, page crawler.PageRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (url) DO UPDATE SET
	session_id = EXCLUDED.session_id,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	links = EXCLUDED.links,
	backlinks = EXCLUDED.backlinks,
	rank = EXCLUDED.rank,
	content_hash = EXCLUDED.content_hash,
	archive_uri = EXCLUDED.archive_uri,
	crawled_at = EXCLUDED.crawled_at`, s.pages, pageColumns)

	links := page.Links
	if links == nil {
		links = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		page.URL,
		page.SessionID,
		page.Title,
		page.Content,
		links,
		page.BacklinkCount,
		page.Rank,
		page.ContentHash,
		page.ArchiveURI,
		page.CrawledAt,
	)
	return crawler.WrapStoreError("upsert page", err)
}

// FindPage returns crawler.ErrPageNotFound when url has no row.
func (s *Store) FindPage(ctx context.Context, url string) (crawler.PageRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE url = $1", pageColumns, s.pages)
	page, err := scanPage(s.pool.QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.PageRecord{}, crawler.ErrPageNotFound
		}
		return crawler.PageRecord{}, crawler.WrapStoreError("find page", err)
	}
	return page, nil
}

// PagesForSession lists the session's pages in rank order.
func (s *Store) PagesForSession(ctx context.Context, sessionID string) ([]crawler.PageRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE session_id = $1 ORDER BY rank DESC, url ASC", pageColumns, s.pages)
	return s.queryPages(ctx, "list session pages", query, sessionID)
}

// CountPagesForSession counts rows owned by sessionID.
func (s *Store) CountPagesForSession(ctx context.Context, sessionID string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = $1", s.pages)
	var n int
	if err := s.pool.QueryRow(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, crawler.WrapStoreError("count pages", err)
	}
	return n, nil
}

// AllPages lists every page in rank order.
func (s *Store) AllPages(ctx context.Context) ([]crawler.PageRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rank DESC, url ASC", pageColumns, s.pages)
	return s.queryPages(ctx, "all pages", query)
}

// MatchPages returns pages whose content contains every word, using ILIKE.
func (s *Store) MatchPages(ctx context.Context, words []string) ([]crawler.PageRecord, error) {
	var (
		conds []string
		args  []any
	)
	for i, w := range words {
		conds = append(conds, fmt.Sprintf("content ILIKE $%d", i+1))
		args = append(args, "%"+escapeLike(w)+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY rank DESC, url ASC", pageColumns, s.pages, where)
	return s.queryPages(ctx, "match pages", query, args...)
}

// CreateSession returns crawler.ErrSessionExists for a duplicate id.
func (s *Store) CreateSession(ctx context.Context, session crawler.Session) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, seed_url, page_limit, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO NOTHING`, s.sessions)
	tag, err := s.pool.Exec(ctx, query, session.ID, session.SeedURL, session.PageLimit, session.CreatedAt)
	if err != nil {
		return crawler.WrapStoreError("create session", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrSessionExists
	}
	return nil
}

// GetSession returns crawler.ErrSessionNotFound for an unknown id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (crawler.Session, error) {
	query := fmt.Sprintf("SELECT id, seed_url, page_limit, created_at FROM %s WHERE id = $1", s.sessions)
	var session crawler.Session
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.SeedURL,
		&session.PageLimit,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Session{}, crawler.ErrSessionNotFound
		}
		return crawler.Session{}, crawler.WrapStoreError("get session", err)
	}
	return session, nil
}

// ClearAll deletes every page and session in one transaction.
func (s *Store) ClearAll(ctx context.Context) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, table := range []string{s.pages, s.sessions} {
		if _, err = tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return crawler.WrapStoreError("clear all", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) queryPages(ctx context.Context, op, query string, args ...any) ([]crawler.PageRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func scanPage(row scanner) (crawler.PageRecord, error) {
	var page crawler.PageRecord
	err := row.Scan(
		&page.URL,
		&page.SessionID,
		&page.Title,
		&page.Content,
		&page.Links,
		&page.BacklinkCount,
		&page.Rank,
		&page.ContentHash,
		&page.ArchiveURI,
		&page.CrawledAt,
	)
	return page, err
}

// escapeLike escapes LIKE wildcards so words match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
