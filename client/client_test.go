package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:    srv.URL,
		RetryDelay: time.Millisecond,
	})
	return c, srv
}

func trackedHandler(calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(Result{Success: true, Tracked: true, IdempotencyKey: "abc123"})
	}
}

func TestClient_TrackThenSuppress(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, trackedHandler(&calls))

	first, err := c.Track(context.Background(), "link-1", "client-1")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if !first.Tracked || first.Suppressed {
		t.Fatalf("first result = %+v, want tracked and not suppressed", first)
	}

	second, err := c.Track(context.Background(), "link-1", "client-1")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if !second.Suppressed || second.Reason != "suppressed" {
		t.Fatalf("second result = %+v, want locally suppressed", second)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d calls, want 1", got)
	}

	other, err := c.Track(context.Background(), "link-2", "client-1")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if other.Suppressed {
		t.Fatal("a different link must not be suppressed")
	}
}

func TestClient_DuplicateReasonAlsoSuppresses(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(Result{Success: true, Tracked: false, Reason: "rate_limited_duplicate"})
	})

	if _, err := c.Track(context.Background(), "link-1", ""); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	got, err := c.Track(context.Background(), "link-1", "")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if !got.Suppressed {
		t.Fatal("a server-deduped link must enter the suppression cache")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls, want 1", calls)
	}
}

func TestClient_RetriesServiceUnavailable(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Result{Success: true, Tracked: true})
	})

	got, err := c.Track(context.Background(), "link-1", "")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if !got.Tracked {
		t.Fatalf("result = %+v, want tracked after retries", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("server saw %d calls, want 3", calls)
	}
}

func TestClient_ExhaustsAttempts(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.Track(context.Background(), "link-1", ""); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("server saw %d calls, want 3", calls)
	}
}

func TestClient_ClientErrorIsTerminal(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := c.Track(context.Background(), "missing", ""); err == nil {
		t.Fatal("expected error on 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls, want 1 (no retry on 4xx)", calls)
	}
}

func TestClient_RequiresLinkID(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.Track(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty linkID")
	}
}

func TestClient_SnapshotRestore(t *testing.T) {
	var calls int32
	c, srv := newTestClient(t, trackedHandler(&calls))

	if _, err := c.Track(context.Background(), "link-1", ""); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}

	fresh := New(Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	if err := fresh.Restore(snap); err != nil {
		t.Fatalf("Restore error: %v", err)
	}

	got, err := fresh.Track(context.Background(), "link-1", "")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if !got.Suppressed {
		t.Fatal("restored cache must suppress the link")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls, want 1", calls)
	}
}

func TestClient_SuppressionExpires(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, trackedHandler(&calls))

	base := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if _, err := c.Track(context.Background(), "link-1", ""); err != nil {
		t.Fatalf("Track error: %v", err)
	}

	c.now = func() time.Time { return base.Add(25 * time.Hour) }
	got, err := c.Track(context.Background(), "link-1", "")
	if err != nil {
		t.Fatalf("Track error: %v", err)
	}
	if got.Suppressed {
		t.Fatal("an entry past the window must not suppress")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("server saw %d calls, want 2", calls)
	}
}
