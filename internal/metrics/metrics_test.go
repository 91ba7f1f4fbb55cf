package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, crawlerPagesTotal)
	require.NotNil(t, searchQueriesTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObservePage(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("observe.example", "crawled"))
	ObservePage("https://observe.example/a", "crawled", 128)
	ObservePage("https://observe.example/b", "failed", 0)

	require.Equal(t, before+1, testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("observe.example", "crawled")))
	require.Equal(t, float64(128), testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("observe.example")))
}

func TestObserveSessionAndSearch(t *testing.T) {
	ObserveSession("completed")
	ObserveSearch("substring", 3)
	ObserveFetch(20 * time.Millisecond)
	ObserveQueueRejected()

	require.GreaterOrEqual(t, testutil.ToFloat64(crawlerSessionsTotal.WithLabelValues("completed")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(searchQueriesTotal.WithLabelValues("substring")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(crawlerQueueRejectedTotal), float64(1))
	require.Positive(t, testutil.CollectAndCount(searchResults))
}

func TestActiveWorkersGauge(t *testing.T) {
	IncActiveWorkers()
	before := testutil.ToFloat64(crawlerActiveWorkers)
	DecActiveWorkers()
	require.Equal(t, before-1, testutil.ToFloat64(crawlerActiveWorkers))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
