package activity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func scraperFor(ts *httptest.Server, blobs BlobStore) *Scraper {
	return NewScraper(ScraperConfig{
		Client:   ts.Client(),
		Blobs:    blobs,
		Resolver: StaticResolver{"acme/privacy": ts.URL + "/privacy"},
	})
}

func TestScrapeMetadata(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.Header().Set("ETag", `"v17"`)
		w.Header().Set("Last-Modified", "Thu, 20 Aug 2026 09:00:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := scraperFor(ts, NewMemoryBlobStore())
	out, err := s.ScrapeMetadata(context.Background(), map[string]any{"company": "acme", "policy": "privacy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out["etag"] != `"v17"` {
		t.Errorf("etag = %v", out["etag"])
	}
	if out["last_modified"] != "Thu, 20 Aug 2026 09:00:00 GMT" {
		t.Errorf("last_modified = %v", out["last_modified"])
	}
}

func TestScrapeMetadata_HTTPErrorIsManaged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	s := scraperFor(ts, NewMemoryBlobStore())
	out, err := s.ScrapeMetadata(context.Background(), map[string]any{"company": "acme", "policy": "privacy"})
	if err != nil {
		t.Fatalf("HTTP errors must be managed, got: %v", err)
	}
	if out["error_type"] != ErrTypeFetchFailed {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeFetchFailed)
	}
}

func TestScrapeMetadata_NetworkErrorIsManaged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := ts.URL
	ts.Close() // nothing is listening anymore

	s := NewScraper(ScraperConfig{
		Blobs:    NewMemoryBlobStore(),
		Resolver: StaticResolver{"acme/privacy": url},
	})

	out, err := s.ScrapeMetadata(context.Background(), map[string]any{"company": "acme", "policy": "privacy"})
	if err != nil {
		t.Fatalf("network errors must be managed, got: %v", err)
	}
	if out["error_type"] != ErrTypeFetchFailed {
		t.Errorf("error_type = %v, want %s", out["error_type"], ErrTypeFetchFailed)
	}
}

func TestScrapeMetadata_UnknownDocument(t *testing.T) {
	s := NewScraper(ScraperConfig{
		Blobs:    NewMemoryBlobStore(),
		Resolver: StaticResolver{},
	})

	// An unregistered document is a configuration bug, not transient.
	_, err := s.ScrapeMetadata(context.Background(), map[string]any{"company": "ghost", "policy": "privacy"})
	if err == nil {
		t.Fatal("expected error for unregistered document")
	}
}

func TestFetchSnapshot_StoresBody(t *testing.T) {
	const body = "<html>privacy policy v2</html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer ts.Close()

	blobs := NewMemoryBlobStore()
	s := scraperFor(ts, blobs)

	out, err := s.FetchSnapshot(context.Background(), map[string]any{
		"company":   "acme",
		"policy":    "privacy",
		"timestamp": "2026-08-20T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, _ := out["snapshot_key"].(string)
	if key != "snapshots/acme/privacy/2026-08-20T09:00:00Z.html" {
		t.Errorf("snapshot_key = %q", key)
	}

	stored, err := blobs.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("stored snapshot unreadable: %v", err)
	}
	if string(stored) != body {
		t.Errorf("stored body = %q", stored)
	}

	sum := sha256.Sum256([]byte(body))
	if out["sha256"] != hex.EncodeToString(sum[:]) {
		t.Errorf("sha256 = %v", out["sha256"])
	}
	if out["size"] != len(body) {
		t.Errorf("size = %v, want %d", out["size"], len(body))
	}
}

func TestRegistry_UnknownActivity(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Invoke(context.Background(), "summon_demon", nil)
	if err == nil {
		t.Fatal("expected error for unknown activity")
	}
}

func TestRegistry_InvokeRegistered(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("echo", func(_ context.Context, input map[string]any) (map[string]any, error) {
		return input, nil
	})

	out, err := r.Invoke(context.Background(), "echo", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["k"] != "v" {
		t.Errorf("output = %v", out)
	}
}
