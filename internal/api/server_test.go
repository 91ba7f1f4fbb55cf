package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/clock/system"
	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/dispatcher"
	queueMemory "github.com/JakeFAU/websearch/internal/queue/memory"
	"github.com/JakeFAU/websearch/internal/search"
	"github.com/JakeFAU/websearch/internal/session"
	"github.com/JakeFAU/websearch/internal/storage/memory"
)

type fixture struct {
	server *Server
	store  *memory.Store
	queue  *queueMemory.Queue
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

func newFixture(t *testing.T, queueDepth int, opts Options) fixture {
	t.Helper()
	store := memory.NewStore()
	q := queueMemory.NewQueue(queueDepth)
	clk := system.NewFrozen(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	coord := session.NewCoordinator(store, fixedIDs{id: "generated"}, clk, 10, zap.NewNop())
	engine := search.NewEngine(store, search.Config{}, zap.NewNop())
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"http://localhost:5173"}
	}
	srv := NewServer(coord, engine, dispatcher.New(q, nil), opts, zap.NewNop())
	return fixture{server: srv, store: store, queue: q}
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_StartCrawl_Succeeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	rec := f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/","pageLimit":3,"session_id":"s1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[crawlResponse](t, rec)
	require.Equal(t, "s1", resp.SessionID)
	require.Equal(t, "Crawl started for https://a.test/ with a limit of 3 pages and session ID s1.", resp.Message)

	item, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s1", item.Session.ID)
	require.Equal(t, 3, item.Session.PageLimit)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_StartCrawl_Defaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	rec := f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[crawlResponse](t, rec)
	require.Equal(t, "generated", resp.SessionID)
	require.Contains(t, resp.Message, "limit of 10 pages")
}

func TestServer_StartCrawl_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
		msg  string
	}{
		{name: "invalid json", body: `{`, want: http.StatusBadRequest, msg: "invalid JSON"},
		{name: "missing url", body: `{"pageLimit":2}`, want: http.StatusBadRequest, msg: "No URL provided"},
		{name: "relative url", body: `{"url":"/x"}`, want: http.StatusBadRequest, msg: "invalid input"},
		{name: "negative limit", body: `{"url":"https://a.test/","pageLimit":-2}`, want: http.StatusBadRequest, msg: "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 4, Options{})
			rec := f.do(t, http.MethodPost, "/api/crawl", tt.body)
			require.Equal(t, tt.want, rec.Code)
			require.Contains(t, decode[map[string]string](t, rec)["error"], tt.msg)
			require.Zero(t, f.queue.Len())
		})
	}
}

func TestServer_StartCrawl_DuplicateSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	body := `{"url":"https://a.test/","pageLimit":1,"session_id":"dup"}`
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/crawl", body).Code)

	rec := f.do(t, http.MethodPost, "/api/crawl", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 1, f.queue.Len())
}

func TestServer_StartCrawl_QueueFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, Options{})
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/","session_id":"one"}`).Code)

	rec := f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/","session_id":"two"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "queue full")
}

func TestServer_GetCrawlData(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	ctx := context.Background()
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/","pageLimit":2,"session_id":"s1"}`).Code)
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{
		URL: "https://a.test/", SessionID: "s1", Rank: 2, Links: []string{"https://b.test/", "https://c.test/"},
	}))
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{URL: "https://b.test/", SessionID: "s1"}))

	rec := f.do(t, http.MethodGet, "/api/get-crawl-data?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[session.Graph](t, rec)
	require.True(t, graph.IsCompleted)
	require.Len(t, graph.Nodes, 2)
	require.Equal(t, []session.Edge{{Source: "https://a.test/", Target: "https://b.test/"}}, graph.Links)
	require.Contains(t, rec.Body.String(), `"isCompleted":true`)

	rec = f.do(t, http.MethodGet, "/api/get-crawl-data", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Session ID is missing")

	rec = f.do(t, http.MethodGet, "/api/get-crawl-data?session_id=unknown", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "session not found")
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	ctx := context.Background()
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{
		URL: "a.test/low", Title: "Low", Content: "alpha  beta", Rank: 5,
	}))
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{
		URL: "https://a.test/high", Title: "High", Content: "Alpha gamma BETA", Rank: 9,
	}))
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{
		URL: "https://a.test/none", Title: "None", Content: "alpha only", Rank: 20,
	}))

	rec := f.do(t, http.MethodGet, "/api/search?query=alpha+beta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]search.Result](t, rec)
	require.Len(t, results, 2)
	require.Equal(t, "https://a.test/high", results[0].URL)
	require.Equal(t, "http://a.test/low", results[1].URL)
	require.Equal(t, "alpha beta", results[1].ContentPreview)
	require.Equal(t, []string{"alpha", "beta"}, results[1].MatchedTags)
	require.Contains(t, rec.Body.String(), `"tags":["alpha","beta"]`)

	rec = f.do(t, http.MethodGet, "/api/search?query=zeta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "No search query provided")
}

func TestServer_StoredResultsAndClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	rec := f.do(t, http.MethodGet, "/api/get-stored-results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	ctx := context.Background()
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{URL: "https://a.test/", Title: "A", Content: "x", Rank: 1}))
	require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{URL: "https://b.test/", Title: "B", Content: "y", Rank: 3}))

	rec = f.do(t, http.MethodGet, "/api/get-stored-results", "")
	stored := decode[[]search.StoredResult](t, rec)
	require.Len(t, stored, 2)
	require.Equal(t, "https://b.test/", stored[0].URL)

	rec = f.do(t, http.MethodPost, "/api/clear-database", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"Database cleared successfully"}`, rec.Body.String())

	pages, err := f.store.AllPages(ctx)
	require.NoError(t, err)
	require.Empty(t, pages)
}

func TestServer_SessionEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	ctx := context.Background()
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/crawl", `{"url":"https://a.test/","pageLimit":5,"session_id":"s1"}`).Code)
	for i, u := range []string{"https://a.test/", "https://b.test/", "https://c.test/"} {
		require.NoError(t, f.store.UpsertPage(ctx, crawler.PageRecord{URL: u, SessionID: "s1", Rank: i}))
	}

	rec := f.do(t, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[session.Status](t, rec)
	require.Equal(t, 3, status.StoredPages)
	require.False(t, status.IsCompleted)

	rec = f.do(t, http.MethodGet, "/api/sessions/s1/pages?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total int       `json:"total"`
		Pages []pageDTO `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Len(t, body.Pages, 2)
	require.Equal(t, "https://b.test/", body.Pages[0].URL)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/sessions/s1/pages?limit=x", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/sessions/s1/pages?offset=-1", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/missing", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sessions/missing/pages", "").Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	down := newFixture(t, 4, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	require.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, Options{})
	req := httptest.NewRequest(http.MethodOptions, "/api/crawl", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type failingSearcher struct {
	err   error
	panic bool
}

func (f failingSearcher) Search(context.Context, string) ([]search.Result, error) {
	if f.panic {
		panic("boom")
	}
	return nil, f.err
}

func (f failingSearcher) Stored(context.Context) ([]search.StoredResult, error) {
	return nil, f.err
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	coord := session.NewCoordinator(store, fixedIDs{id: "x"}, system.New(), 10, zap.NewNop())
	storeErr := crawler.WrapStoreError("all pages", errors.New("connection refused"))

	srv := NewServer(coord, failingSearcher{err: storeErr}, dispatcher.New(queueMemory.NewQueue(1), nil), Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/get-stored-results", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")

	srv = NewServer(coord, failingSearcher{panic: true}, dispatcher.New(queueMemory.NewQueue(1), nil), Options{}, zap.NewNop())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=a", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "internal server error"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, statusFor(crawler.InvalidInputf("x")))
	require.Equal(t, http.StatusBadRequest, statusFor(crawler.ErrSessionNotFound))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(crawler.ErrQueueFull))
	require.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	require.Equal(t, http.StatusInternalServerError, statusFor(crawler.WrapStoreError("op", errors.New("x"))))
}
