package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://www.WikiArt.org/en/claude-monet", "www.wikiart.org"},
		{"no scheme", "galleriesnow.net/shows", "galleriesnow.net"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics.test", "ok"))
	ObserveFetch("https://metrics.test/a", "ok", 128)
	after := testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics.test", "ok"))
	if after-before != 1 {
		t.Fatalf("expected fetch counter to increase by 1, got %f", after-before)
	}

	ObserveBatch("metrics_test_crawl")
	if got := testutil.ToFloat64(batchesFlushedTotal.WithLabelValues("metrics_test_crawl")); got != 1 {
		t.Fatalf("expected one batch, got %f", got)
	}

	ObserveRecord("metrics_test_crawl", false)
	if got := testutil.ToFloat64(crawlRecordsTotal.WithLabelValues("metrics_test_crawl", "false")); got != 1 {
		t.Fatalf("expected one failed record, got %f", got)
	}
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/metrics-test/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics-test/7", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	if after-before != 1 {
		t.Fatalf("expected request counter increment, got %f", after-before)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://wikiart.org", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
