package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/crawler"
)

var pageCols = []string{
	"url", "session_id", "title", "content", "links", "backlinks", "rank", "content_hash", "archive_uri", "crawled_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "", "")
	require.Error(t, err)
	_, err = NewWithPool(mock, "pages; DROP TABLE x", "")
	require.Error(t, err)
	store, err := NewWithPool(mock, "crawl_pages", "crawl_sessions")
	require.NoError(t, err)
	require.Equal(t, "crawl_pages", store.pages)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pages").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	page := crawler.PageRecord{
		URL:           "https://a.test/",
		SessionID:     "s1",
		Title:         "A",
		Content:       "alpha",
		BacklinkCount: 0,
		Rank:          0,
		ContentHash:   "abc",
		CrawledAt:     now,
	}

	mock.ExpectExec("INSERT INTO pages").
		WithArgs(page.URL, page.SessionID, page.Title, page.Content, []string{}, 0, 0, "abc", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertPage(context.Background(), page))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO pages").WillReturnError(errors.New("connection reset"))

	err := store.UpsertPage(context.Background(), crawler.PageRecord{URL: "https://a.test/"})
	var storeErr *crawler.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "upsert page", storeErr.Op)
}

func TestFindPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM pages WHERE url").
		WithArgs("https://a.test/").
		WillReturnRows(pgxmock.NewRows(pageCols).
			AddRow("https://a.test/", "s1", "A", "alpha", []string{"https://b.test/"}, 1, 1, "h", "", now))
	mock.ExpectQuery("SELECT (.+) FROM pages WHERE url").
		WithArgs("https://missing.test/").
		WillReturnError(pgx.ErrNoRows)

	page, err := store.FindPage(context.Background(), "https://a.test/")
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.test/"}, page.Links)
	require.Equal(t, 1, page.Rank)
	require.Equal(t, now, page.CrawledAt)

	_, err = store.FindPage(context.Background(), "https://missing.test/")
	require.ErrorIs(t, err, crawler.ErrPageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllPagesAndSessionQueries(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := func() *pgxmock.Rows {
		return pgxmock.NewRows(pageCols).
			AddRow("https://hi.test/", "s1", "Hi", "x", []string{}, 9, 9, "", "", now).
			AddRow("https://lo.test/", "s1", "Lo", "y", []string{}, 5, 5, "", "", now)
	}
	mock.ExpectQuery("SELECT (.+) FROM pages ORDER BY rank DESC").WillReturnRows(rows())
	mock.ExpectQuery("SELECT (.+) FROM pages WHERE session_id").WithArgs("s1").WillReturnRows(rows())
	mock.ExpectQuery("SELECT COUNT").WithArgs("s1").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	all, err := store.AllPages(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "https://hi.test/", all[0].URL)

	forSession, err := store.PagesForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, forSession, 2)

	n, err := store.CountPagesForSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchPagesEscapesWildcards(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("content ILIKE \\$1 AND content ILIKE \\$2").
		WithArgs("%alpha%", `%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows(pageCols))

	pages, err := store.MatchPages(context.Background(), []string{"alpha", "50%_off"})
	require.NoError(t, err)
	require.Empty(t, pages)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessions(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	session := crawler.Session{ID: "s1", SeedURL: "https://a.test/", PageLimit: 3, CreatedAt: now}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s1", "https://a.test/", 3, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("s1", "https://a.test/", 3, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT id, seed_url, page_limit, created_at FROM sessions").
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "seed_url", "page_limit", "created_at"}).
			AddRow("s1", "https://a.test/", 3, now))
	mock.ExpectQuery("SELECT id, seed_url, page_limit, created_at FROM sessions").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, store.CreateSession(context.Background(), session))
	require.ErrorIs(t, store.CreateSession(context.Background(), session), crawler.ErrSessionExists)

	got, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, session, got)

	_, err = store.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, crawler.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pages").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.ClearAll(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearAllRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pages").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	var storeErr *crawler.StoreError
	require.ErrorAs(t, store.ClearAll(context.Background()), &storeErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	require.Equal(t, `a\\b\%c\_d`, escapeLike(`a\b%c_d`))
}
