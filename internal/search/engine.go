// Package search answers keyword queries against the stored corpus.
package search

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
	"github.com/JakeFAU/websearch/internal/metrics"
)

// DefaultPreviewRunes is the length of content previews.
const DefaultPreviewRunes = 300

// Result is one search hit.
type Result struct {
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	ContentPreview string   `json:"content"`
	Rank           int      `json:"rank"`
	MatchedTags    []string `json:"tags"`
}

// StoredResult summarises one stored page.
type StoredResult struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	ContentPreview string `json:"content"`
	Rank           int    `json:"rank"`
}

// Config controls Engine behavior.
type Config struct {
	Mode         Mode
	PreviewRunes int
}

// Engine matches queries against a crawler.PageStore.
type Engine struct {
	store  crawler.PageStore
	cfg    Config
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store crawler.PageStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModeSubstring
	}
	if cfg.PreviewRunes <= 0 {
		cfg.PreviewRunes = DefaultPreviewRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, cfg: cfg, logger: logger.Named("search")}
}

// Mode reports the configured match mode.
func (e *Engine) Mode() Mode {
	return e.cfg.Mode
}

// Search returns every page containing all whitespace-separated words of
// query, ordered by rank descending.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil, crawler.InvalidInputf("query is required")
	}

	pages, err := e.candidates(ctx, words)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	for _, page := range pages {
		content := normalize(page.Content)
		m := newMatcher(e.cfg.Mode, content)
		tags := make([]string, 0, len(words))
		for _, w := range words {
			if m.contains(w) {
				tags = append(tags, w)
			}
		}
		if len(tags) != len(words) {
			continue
		}
		results = append(results, Result{
			URL:            crawler.DisplayURL(page.URL),
			Title:          page.Title,
			ContentPreview: truncateRunes(content, e.cfg.PreviewRunes),
			Rank:           page.Rank,
			MatchedTags:    tags,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rank > results[j].Rank
	})

	metrics.ObserveSearch(string(e.cfg.Mode), len(results))
	e.logger.Debug("search answered",
		zap.String("query", query),
		zap.String("mode", string(e.cfg.Mode)),
		zap.Int("candidates", len(pages)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// candidates loads the pages to check, pushing the filter down to the
// store when it supports it. Stem mode always scans every page.
func (e *Engine) candidates(ctx context.Context, words []string) ([]crawler.PageRecord, error) {
	if pm, ok := e.store.(crawler.PageMatcher); ok && e.cfg.Mode != ModeStem {
		pages, err := pm.MatchPages(ctx, e.pushdownTerms(words))
		if err != nil {
			return nil, crawler.WrapStoreError("match pages", err)
		}
		return pages, nil
	}
	pages, err := e.store.AllPages(ctx)
	if err != nil {
		return nil, crawler.WrapStoreError("all pages", err)
	}
	return pages, nil
}

// pushdownTerms returns substrings every matching page must contain.
func (e *Engine) pushdownTerms(words []string) []string {
	if e.cfg.Mode != ModeWord {
		return words
	}
	var terms []string
	for _, w := range words {
		terms = append(terms, tokens(w)...)
	}
	return terms
}

// Stored lists every stored page by rank with short previews.
func (e *Engine) Stored(ctx context.Context) ([]StoredResult, error) {
	pages, err := e.store.AllPages(ctx)
	if err != nil {
		return nil, crawler.WrapStoreError("all pages", err)
	}
	out := make([]StoredResult, 0, len(pages))
	for _, page := range pages {
		out = append(out, StoredResult{
			URL:            page.URL,
			Title:          page.Title,
			ContentPreview: truncateRunes(page.Content, e.cfg.PreviewRunes),
			Rank:           page.Rank,
		})
	}
	return out, nil
}
