package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/JakeFAU/websearch/internal/crawler"
)

func TestNewRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{URI: "mongodb://localhost:27017"})
	require.Equal(t, "search_engine", cfg.Database)
	require.Equal(t, "web_pages", cfg.PagesCollection)
	require.Equal(t, "sessions", cfg.SessionsCollection)
	require.Equal(t, 10*time.Second, cfg.ConnectTimeout)

	kept := withDefaults(Config{Database: "db", PagesCollection: "p", SessionsCollection: "s", ConnectTimeout: time.Second})
	require.Equal(t, "db", kept.Database)
	require.Equal(t, time.Second, kept.ConnectTimeout)
}

func TestMatchFilterQuotesWords(t *testing.T) {
	t.Parallel()

	require.Equal(t, bson.M{}, matchFilter(nil))

	got := matchFilter([]string{"alpha", "c++"})
	require.Equal(t, bson.M{"$and": bson.A{
		bson.M{"content": bson.M{"$regex": "alpha", "$options": "i"}},
		bson.M{"content": bson.M{"$regex": `c\+\+`, "$options": "i"}},
	}}, got)
}

func TestPageDocRoundTrip(t *testing.T) {
	t.Parallel()

	page := crawler.PageRecord{
		URL:           "https://a.test/",
		SessionID:     "s1",
		Title:         "A",
		Content:       "alpha",
		Links:         []string{"https://b.test/"},
		BacklinkCount: 1,
		Rank:          1,
		ContentHash:   "h",
		ArchiveURI:    "gs://bucket/a.html",
		CrawledAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(toPageDoc(page))
	require.NoError(t, err)

	var decoded pageDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	require.Equal(t, page, fromPageDoc(decoded))

	var fields bson.M
	require.NoError(t, bson.Unmarshal(raw, &fields))
	require.Contains(t, fields, "backlinks")
	require.Contains(t, fields, "session_id")
}

func TestToPageDocNeverStoresNullLinks(t *testing.T) {
	t.Parallel()

	require.NotNil(t, toPageDoc(crawler.PageRecord{URL: "x"}).Links)
}

func TestRankSort(t *testing.T) {
	t.Parallel()

	require.Equal(t, bson.D{{Key: "rank", Value: -1}, {Key: "url", Value: 1}}, rankSort())
}
