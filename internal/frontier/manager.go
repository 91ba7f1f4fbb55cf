package frontier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/extract"
	hashsha "github.com/JakeFAU/websearch/internal/hash/sha256"
	"github.com/JakeFAU/websearch/internal/metrics"
	"github.com/JakeFAU/websearch/internal/rank"
)

const defaultContentType = "text/html; charset=utf-8"

// Config controls Manager behavior.
type Config struct {
	// Workers bounds concurrent fetches within one run. Values below 1 mean 1.
	Workers int
	// ArchivePrefix is prepended to archived body paths.
	ArchivePrefix string
	ContentType   string
}

// Manager crawls sessions breadth-first through the injected collaborators.
type Manager struct {
	store   crawler.PageStore
	fetcher crawler.Fetcher
	blobs   crawler.BlobStore
	hasher  crawler.Hasher
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
}

// NewManager constructs a Manager. blobs may be nil to disable archiving.
func NewManager(
	store crawler.PageStore,
	fetcher crawler.Fetcher,
	blobs crawler.BlobStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		fetcher: fetcher,
		blobs:   blobs,
		hasher:  hasher,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("frontier"),
	}
}

// Run crawls from session.SeedURL until PageLimit pages are stored or the
// frontier is exhausted. Per-URL failures are recorded in the report; a store
// failure or context cancellation stops the run and is returned alongside the
// partial report.
func (m *Manager) Run(ctx context.Context, session crawler.Session) (Report, error) {
	logger := m.logger.With(zap.String("session_id", session.ID))
	report := Report{SessionID: session.ID, StartedAt: m.clock.Now()}
	finish := func(err error) (Report, error) {
		report.FinishedAt = m.clock.Now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
		return report, err
	}
	if session.PageLimit <= 0 {
		return finish(crawler.InvalidInputf("page limit must be positive, got %d", session.PageLimit))
	}

	front := New(session.SeedURL)
	for front.Len() > 0 && report.Crawled < session.PageLimit {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("crawl canceled: %w", err))
		}

		k := min(m.cfg.Workers, session.PageLimit-report.Crawled)
		batch := front.Next(k)
		results, pages, err := m.processBatch(ctx, session.ID, batch)
		for i, res := range results {
			if res.URL == "" {
				// not reached before a fatal error
				continue
			}
			report.Results = append(report.Results, res)
			if res.Status != StatusCrawled {
				continue
			}
			report.Crawled++
			added := front.Push(pages[i].Links)
			logger.Debug("page crawled",
				zap.String("url", res.URL),
				zap.Int("links", len(pages[i].Links)),
				zap.Int("enqueued", added),
			)
		}
		if err != nil {
			logger.Error("crawl aborted", zap.Error(err))
			return finish(err)
		}
	}

	logger.Info("crawl finished",
		zap.Int("crawled", report.Crawled),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("failed", report.Count(StatusFailed)),
	)
	return finish(nil)
}

// processBatch handles every URL of a batch concurrently. Slot i of both
// returned slices belongs to batch[i].
func (m *Manager) processBatch(
	ctx context.Context,
	sessionID string,
	batch []string,
) ([]Result, []crawler.PageRecord, error) {
	results := make([]Result, len(batch))
	pages := make([]crawler.PageRecord, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, url := range batch {
		g.Go(func() error {
			res, page, err := m.processURL(gctx, sessionID, url)
			if err != nil {
				return err
			}
			results[i] = res
			pages[i] = page
			return nil
		})
	}
	err := g.Wait()
	return results, pages, err
}

// processURL returns an error only for failures that must stop the run.
func (m *Manager) processURL(ctx context.Context, sessionID, url string) (Result, crawler.PageRecord, error) {
	logger := m.logger.With(zap.String("session_id", sessionID), zap.String("url", url))

	_, err := m.store.FindPage(ctx, url)
	switch {
	case err == nil:
		logger.Debug("already crawled, skipping")
		metrics.ObservePage(url, string(StatusSkipped), 0)
		return Result{URL: url, Status: StatusSkipped}, crawler.PageRecord{}, nil
	case !errors.Is(err, crawler.ErrPageNotFound):
		return Result{}, crawler.PageRecord{}, crawler.WrapStoreError("find page", err)
	}

	resp, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, crawler.PageRecord{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		logger.Warn("fetch failed", zap.Error(err))
		metrics.ObservePage(url, string(StatusFailed), 0)
		return Result{URL: url, Status: StatusFailed, Err: err}, crawler.PageRecord{}, nil
	}
	metrics.ObserveFetch(resp.Duration)

	doc, err := extract.Extract(resp.Body, url)
	if err != nil {
		logger.Warn("extract failed", zap.Error(err))
		metrics.ObservePage(url, string(StatusFailed), len(resp.Body))
		return Result{URL: url, Status: StatusFailed, Err: err}, crawler.PageRecord{}, nil
	}

	links := extract.ResolveLinks(url, doc.Hrefs)
	score := rank.OutDegree(links)
	page := crawler.PageRecord{
		URL:           url,
		SessionID:     sessionID,
		Title:         doc.Title,
		Content:       doc.Text,
		Links:         links,
		BacklinkCount: score,
		Rank:          score,
		CrawledAt:     m.clock.Now(),
	}
	m.fingerprint(ctx, logger, &page, resp.Body)

	if err := m.store.UpsertPage(ctx, page); err != nil {
		return Result{}, crawler.PageRecord{}, crawler.WrapStoreError("upsert page", err)
	}
	metrics.ObservePage(url, string(StatusCrawled), len(resp.Body))
	return Result{URL: url, Status: StatusCrawled, Links: len(links)}, page, nil
}

// fingerprint fills ContentHash and, when archiving is enabled, ArchiveURI.
// Archive failures are logged and leave ArchiveURI empty.
func (m *Manager) fingerprint(ctx context.Context, logger *zap.Logger, page *crawler.PageRecord, body []byte) {
	if m.hasher == nil {
		return
	}
	digest, err := m.hasher.Hash(body)
	if err != nil {
		logger.Warn("hash body failed", zap.Error(err))
		return
	}
	page.ContentHash = digest
	if m.blobs == nil {
		return
	}
	uri, err := m.blobs.PutObject(ctx, m.archivePath(page.SessionID, digest), m.cfg.ContentType, body)
	if err != nil {
		logger.Warn("archive body failed", zap.Error(err))
		return
	}
	page.ArchiveURI = uri
}

func (m *Manager) archivePath(sessionID, digest string) string {
	name := fmt.Sprintf("%s/%s.html", sessionID, hashsha.ShortDigest(digest, 32))
	prefix := strings.Trim(m.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
