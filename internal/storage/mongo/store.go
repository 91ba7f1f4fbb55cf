// Package mongostore persists pages and sessions in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/websearch/internal/crawler"
)

// Config selects the deployment, database and collections.
type Config struct {
	URI                string
	Database           string
	PagesCollection    string
	SessionsCollection string
	ConnectTimeout     time.Duration
}

type pageDoc struct {
	URL         string    `bson:"url"`
	SessionID   string    `bson:"session_id"`
	Title       string    `bson:"title"`
	Content     string    `bson:"content"`
	Links       []string  `bson:"links"`
	Backlinks   int       `bson:"backlinks"`
	Rank        int       `bson:"rank"`
	ContentHash string    `bson:"content_hash,omitempty"`
	ArchiveURI  string    `bson:"archive_uri,omitempty"`
	CrawledAt   time.Time `bson:"crawled_at"`
}

type sessionDoc struct {
	ID        string    `bson:"session_id"`
	SeedURL   string    `bson:"url"`
	PageLimit int       `bson:"page_limit"`
	CreatedAt time.Time `bson:"created_at"`
}

// Store implements crawler.Store and crawler.PageMatcher on MongoDB.
type Store struct {
	client   *mongo.Client
	pages    *mongo.Collection
	sessions *mongo.Collection
}

var (
	_ crawler.Store       = (*Store)(nil)
	_ crawler.PageMatcher = (*Store)(nil)
)

// New connects, pings the deployment and ensures unique indexes on the keys.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = withDefaults(cfg)
	if cfg.URI == "" {
		return nil, errors.New("storage.mongo.uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	s := newStore(client, client.Database(cfg.Database), cfg)
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func newStore(client *mongo.Client, db *mongo.Database, cfg Config) *Store {
	return &Store{
		client:   client,
		pages:    db.Collection(cfg.PagesCollection),
		sessions: db.Collection(cfg.SessionsCollection),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Database == "" {
		cfg.Database = "search_engine"
	}
	if cfg.PagesCollection == "" {
		cfg.PagesCollection = "web_pages"
	}
	if cfg.SessionsCollection == "" {
		cfg.SessionsCollection = "sessions"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return cfg
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.pages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
		{Keys: rankSort()},
	})
	if err != nil {
		return fmt.Errorf("create page indexes: %w", err)
	}
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	return nil
}

// UpsertPage replaces the document keyed by page.URL, inserting when absent.
func (s *Store) UpsertPage(ctx context.Context, page crawler.PageRecord) error {
	_, err := s.pages.ReplaceOne(ctx,
		bson.M{"url": page.URL},
		toPageDoc(page),
		options.Replace().SetUpsert(true),
	)
	return crawler.WrapStoreError("upsert page", err)
}

// FindPage returns crawler.ErrPageNotFound when url has no document.
func (s *Store) FindPage(ctx context.Context, url string) (crawler.PageRecord, error) {
	var doc pageDoc
	if err := s.pages.FindOne(ctx, bson.M{"url": url}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return crawler.PageRecord{}, crawler.ErrPageNotFound
		}
		return crawler.PageRecord{}, crawler.WrapStoreError("find page", err)
	}
	return fromPageDoc(doc), nil
}

// PagesForSession lists the session's pages in rank order.
func (s *Store) PagesForSession(ctx context.Context, sessionID string) ([]crawler.PageRecord, error) {
	return s.findPages(ctx, "list session pages", bson.M{"session_id": sessionID})
}

// CountPagesForSession counts documents owned by sessionID.
func (s *Store) CountPagesForSession(ctx context.Context, sessionID string) (int, error) {
	n, err := s.pages.CountDocuments(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return 0, crawler.WrapStoreError("count pages", err)
	}
	return int(n), nil
}

// AllPages lists every page in rank order.
func (s *Store) AllPages(ctx context.Context) ([]crawler.PageRecord, error) {
	return s.findPages(ctx, "all pages", bson.M{})
}

// MatchPages returns pages whose content contains every word, case-insensitively.
func (s *Store) MatchPages(ctx context.Context, words []string) ([]crawler.PageRecord, error) {
	return s.findPages(ctx, "match pages", matchFilter(words))
}

// CreateSession returns crawler.ErrSessionExists for a duplicate id.
func (s *Store) CreateSession(ctx context.Context, session crawler.Session) error {
	_, err := s.sessions.InsertOne(ctx, sessionDoc{
		ID:        session.ID,
		SeedURL:   session.SeedURL,
		PageLimit: session.PageLimit,
		CreatedAt: session.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return crawler.ErrSessionExists
	}
	return crawler.WrapStoreError("create session", err)
}

// GetSession returns crawler.ErrSessionNotFound for an unknown id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (crawler.Session, error) {
	var doc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return crawler.Session{}, crawler.ErrSessionNotFound
		}
		return crawler.Session{}, crawler.WrapStoreError("get session", err)
	}
	return crawler.Session{
		ID:        doc.ID,
		SeedURL:   doc.SeedURL,
		PageLimit: doc.PageLimit,
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}

// ClearAll deletes every page and session document.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.pages.DeleteMany(ctx, bson.M{}); err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	if _, err := s.sessions.DeleteMany(ctx, bson.M{}); err != nil {
		return crawler.WrapStoreError("clear all", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongodb disconnect: %w", err)
	}
	return nil
}

func (s *Store) findPages(ctx context.Context, op string, filter any) ([]crawler.PageRecord, error) {
	cur, err := s.pages.Find(ctx, filter, options.Find().SetSort(rankSort()))
	if err != nil {
		return nil, crawler.WrapStoreError(op, err)
	}
	var docs []pageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, crawler.WrapStoreError(op, err)
	}
	pages := make([]crawler.PageRecord, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, fromPageDoc(doc))
	}
	return pages, nil
}

func rankSort() bson.D {
	return bson.D{{Key: "rank", Value: -1}, {Key: "url", Value: 1}}
}

// matchFilter requires every word as a literal, case-insensitive substring
// of content. No words matches everything.
func matchFilter(words []string) bson.M {
	if len(words) == 0 {
		return bson.M{}
	}
	conds := make(bson.A, 0, len(words))
	for _, w := range words {
		conds = append(conds, bson.M{"content": bson.M{
			"$regex":   regexp.QuoteMeta(w),
			"$options": "i",
		}})
	}
	return bson.M{"$and": conds}
}

func toPageDoc(p crawler.PageRecord) pageDoc {
	links := p.Links
	if links == nil {
		links = []string{}
	}
	return pageDoc{
		URL:         p.URL,
		SessionID:   p.SessionID,
		Title:       p.Title,
		Content:     p.Content,
		Links:       links,
		Backlinks:   p.BacklinkCount,
		Rank:        p.Rank,
		ContentHash: p.ContentHash,
		ArchiveURI:  p.ArchiveURI,
		CrawledAt:   p.CrawledAt,
	}
}

func fromPageDoc(d pageDoc) crawler.PageRecord {
	return crawler.PageRecord{
		URL:           d.URL,
		SessionID:     d.SessionID,
		Title:         d.Title,
		Content:       d.Content,
		Links:         d.Links,
		BacklinkCount: d.Backlinks,
		Rank:          d.Rank,
		ContentHash:   d.ContentHash,
		ArchiveURI:    d.ArchiveURI,
		CrawledAt:     d.CrawledAt.UTC(),
	}
}
