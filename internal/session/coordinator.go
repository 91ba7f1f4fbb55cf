// Package session registers crawl sessions and reports their progress.
package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// StartRequest describes a crawl to register.
type StartRequest struct {
	SeedURL string
	// PageLimit of zero selects the configured default.
	PageLimit int
	// SessionID is generated when empty.
	SessionID string
}

// Node is a page in a session graph.
type Node struct {
	ID string `json:"id"`
}

// Edge is a link between two pages of the same session.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the link structure of one session's pages.
type Graph struct {
	Nodes       []Node `json:"nodes"`
	Links       []Edge `json:"links"`
	IsCompleted bool   `json:"isCompleted"`
}

// Coordinator owns session bookkeeping on top of a crawler.Store.
type Coordinator struct {
	store            crawler.Store
	ids              crawler.IDGenerator
	clock            crawler.Clock
	defaultPageLimit int
	logger           *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(
	store crawler.Store,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	defaultPageLimit int,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:            store,
		ids:              ids,
		clock:            clock,
		defaultPageLimit: defaultPageLimit,
		logger:           logger.Named("session"),
	}
}

// Start validates req and registers a new session.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (crawler.Session, error) {
	seed, err := crawler.ValidateSeedURL(req.SeedURL)
	if err != nil {
		return crawler.Session{}, err
	}

	limit := req.PageLimit
	switch {
	case limit < 0:
		return crawler.Session{}, crawler.InvalidInputf("page limit must not be negative, got %d", limit)
	case limit == 0:
		limit = c.defaultPageLimit
	}
	if limit <= 0 {
		return crawler.Session{}, crawler.InvalidInputf("page limit is required")
	}

	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		if id, err = c.ids.NewID(); err != nil {
			return crawler.Session{}, err
		}
	}

	session := crawler.Session{
		ID:        id,
		SeedURL:   seed,
		PageLimit: limit,
		CreatedAt: c.clock.Now(),
	}
	if err := c.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, crawler.ErrSessionExists) {
			return crawler.Session{}, crawler.InvalidInputf("session %q already exists", id)
		}
		return crawler.Session{}, crawler.WrapStoreError("create session", err)
	}

	c.logger.Info("session started",
		zap.String("session_id", id),
		zap.String("url", seed),
		zap.Int("page_limit", limit),
	)
	return session, nil
}

// Session returns the registered session for id.
func (c *Coordinator) Session(ctx context.Context, id string) (crawler.Session, error) {
	if strings.TrimSpace(id) == "" {
		return crawler.Session{}, crawler.InvalidInputf("session id is required")
	}
	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, crawler.ErrSessionNotFound) {
			return crawler.Session{}, err
		}
		return crawler.Session{}, crawler.WrapStoreError("get session", err)
	}
	return session, nil
}

// IsComplete reports whether the session owns at least PageLimit records.
func (c *Coordinator) IsComplete(ctx context.Context, id string) (bool, error) {
	session, err := c.Session(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := c.store.CountPagesForSession(ctx, id)
	if err != nil {
		return false, crawler.WrapStoreError("count pages", err)
	}
	return n >= session.PageLimit, nil
}

// Status summarises a session's progress.
type Status struct {
	Session     crawler.Session `json:"session"`
	StoredPages int             `json:"stored_pages"`
	IsCompleted bool            `json:"isCompleted"`
}

// Status reports the session plus how many records it currently owns.
func (c *Coordinator) Status(ctx context.Context, id string) (Status, error) {
	session, err := c.Session(ctx, id)
	if err != nil {
		return Status{}, err
	}
	n, err := c.store.CountPagesForSession(ctx, id)
	if err != nil {
		return Status{}, crawler.WrapStoreError("count pages", err)
	}
	return Status{Session: session, StoredPages: n, IsCompleted: n >= session.PageLimit}, nil
}

// Pages lists the records currently tagged with the session, rank-desc.
func (c *Coordinator) Pages(ctx context.Context, id string) ([]crawler.PageRecord, error) {
	if _, err := c.Session(ctx, id); err != nil {
		return nil, err
	}
	pages, err := c.store.PagesForSession(ctx, id)
	if err != nil {
		return nil, crawler.WrapStoreError("list session pages", err)
	}
	return pages, nil
}

// Graph returns the session's pages and the links between them. Links to
// pages outside the session are omitted.
func (c *Coordinator) Graph(ctx context.Context, id string) (Graph, error) {
	complete, err := c.IsComplete(ctx, id)
	if err != nil {
		return Graph{}, err
	}
	pages, err := c.store.PagesForSession(ctx, id)
	if err != nil {
		return Graph{}, crawler.WrapStoreError("list session pages", err)
	}

	members := make(map[string]struct{}, len(pages))
	graph := Graph{
		Nodes:       make([]Node, 0, len(pages)),
		Links:       []Edge{},
		IsCompleted: complete,
	}
	for _, p := range pages {
		members[p.URL] = struct{}{}
		graph.Nodes = append(graph.Nodes, Node{ID: p.URL})
	}
	for _, p := range pages {
		for _, link := range p.Links {
			if _, ok := members[link]; ok {
				graph.Links = append(graph.Links, Edge{Source: p.URL, Target: link})
			}
		}
	}
	return graph, nil
}

// Clear deletes every page and session.
func (c *Coordinator) Clear(ctx context.Context) error {
	if err := c.store.ClearAll(ctx); err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	c.logger.Info("store cleared")
	return nil
}
