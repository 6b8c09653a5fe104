package drive

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ApenasGabs/queroAulas/internal/errs"
	"github.com/ApenasGabs/queroAulas/internal/retry"
)

// quickRetry keeps retried failures from slowing the suite down.
func quickRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 2,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func testClient(srv *httptest.Server) *Client {
	return New(Config{
		APIBase:        srv.URL,
		EmbedBase:      "https://drive.example.com",
		RequestsPerSec: 1000,
		RetryConfig:    quickRetry(),
		AuthToken:      "tok-123",
	})
}

func TestListChildren(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"files": [
				{"id": "f1", "name": "Module 1", "mimeType": "application/vnd.google-apps.folder"},
				{"id": "v1", "name": "intro.mp4", "mimeType": "video/mp4", "size": "1000",
				 "modifiedTime": "2026-01-15T10:00:00Z"},
				{"id": "", "name": "ghost", "mimeType": "video/mp4"},
				{"id": "x1", "name": "", "mimeType": "video/mp4"}
			]
		}`)
	}))
	defer srv.Close()

	items, err := testClient(srv).ListChildren(context.Background(), "folder-id")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}

	if gotQuery != "'folder-id' in parents and trashed = false" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("auth header = %q", gotAuth)
	}

	// Entries missing id or name are dropped.
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}
	if items[0].ID != "f1" || items[1].ID != "v1" {
		t.Errorf("item ids = %s, %s", items[0].ID, items[1].ID)
	}
	if items[1].Size != "1000" {
		t.Errorf("size = %q, want 1000", items[1].Size)
	}
}

func TestListChildren_EmptyID(t *testing.T) {
	c := New(Config{APIBase: "http://unused", RetryConfig: quickRetry()})
	_, err := c.ListChildren(context.Background(), "")
	if errs.KindOf(err) != errs.KindInvalidInput {
		t.Errorf("kind = %v, want invalid_input", errs.KindOf(err))
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusBadRequest, errs.KindInvalidInput},
		{http.StatusUnauthorized, errs.KindUnauthorized},
		{http.StatusForbidden, errs.KindUnauthorized},
		{http.StatusNotFound, errs.KindNotFound},
		{http.StatusTooManyRequests, errs.KindTransient},
		{http.StatusInternalServerError, errs.KindTransient},
		{http.StatusServiceUnavailable, errs.KindTransient},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"error": {"code": 0, "message": "provider says no"}}`)
		}))

		_, err := testClient(srv).ListChildren(context.Background(), "folder-id")
		srv.Close()

		if err == nil {
			t.Errorf("status %d: want error", tt.status)
			continue
		}
		if got := errs.KindOf(err); got != tt.kind {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.kind)
		}
	}
}

func TestListChildren_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"files": [{"id": "v1", "name": "a.mp4", "mimeType": "video/mp4"}]}`)
	}))
	defer srv.Close()

	items, err := testClient(srv).ListChildren(context.Background(), "folder-id")
	if err != nil {
		t.Fatalf("ListChildren after retry: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items", len(items))
	}
	if calls.Load() != 2 {
		t.Errorf("server called %d times, want 2", calls.Load())
	}
}

func TestListChildren_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := testClient(srv).ListChildren(context.Background(), "folder-id"); err == nil {
		t.Fatal("want error")
	}
	if calls.Load() != 1 {
		t.Errorf("not-found retried: %d calls", calls.Load())
	}
}

func TestOpenContent(t *testing.T) {
	payload := "raw video bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("alt = %q, want media", r.URL.Query().Get("alt"))
		}
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	body, size, err := testClient(srv).OpenContent(context.Background(), "v1")
	if err != nil {
		t.Fatalf("OpenContent: %v", err)
	}
	defer body.Close()

	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("body = %q", got)
	}
}

func TestOpenContentOutlivesRequestTimeout(t *testing.T) {
	// Streams 100 bytes in trickled chunks, slower in total than the
	// client's request timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		flusher := w.(http.Flusher)
		for range 5 {
			w.Write(bytes.Repeat([]byte("x"), 20))
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c := New(Config{
		APIBase:        srv.URL,
		Timeout:        100 * time.Millisecond,
		RequestsPerSec: 1000,
		RetryConfig:    quickRetry(),
	})

	body, size, err := c.OpenContent(context.Background(), "v1")
	if err != nil {
		t.Fatalf("OpenContent: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("a slow but progressing stream must read to completion: %v", err)
	}
	if len(got) != 100 || size != 100 {
		t.Errorf("read %d bytes (declared %d), want 100", len(got), size)
	}
}

func TestListChildrenHonorsRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		io.WriteString(w, `{"files": []}`)
	}))
	defer srv.Close()

	c := New(Config{
		APIBase:        srv.URL,
		Timeout:        50 * time.Millisecond,
		RequestsPerSec: 1000,
		RetryConfig:    retry.Config{MaxAttempts: 1, InitialWait: time.Millisecond, Multiplier: 2},
	})
	if _, err := c.ListChildren(context.Background(), "folder-id"); err == nil {
		t.Fatal("metadata calls should still be bounded by the request timeout")
	}
}

func TestFileMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"id": "v1", "name": "intro.mp4", "mimeType": "video/mp4", "size": "2048"}`)
	}))
	defer srv.Close()

	item, err := testClient(srv).FileMetadata(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FileMetadata: %v", err)
	}
	if item.Name != "intro.mp4" || item.Size != "2048" {
		t.Errorf("item = %+v", item)
	}
}

func TestEmbedURL(t *testing.T) {
	c := New(Config{EmbedBase: "https://drive.google.com"})
	want := "https://drive.google.com/file/d/abc123/preview"
	if got := c.EmbedURL("abc123"); got != want {
		t.Errorf("EmbedURL = %q, want %q", got, want)
	}
}

func TestSetAuthToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"files": []}`)
	}))
	defer srv.Close()

	c := New(Config{APIBase: srv.URL, RequestsPerSec: 1000, RetryConfig: quickRetry()})
	if _, err := c.ListChildren(context.Background(), "folder-id"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("unexpected auth header %q before a token is set", gotAuth)
	}

	c.SetAuthToken("fresh-token")
	if _, err := c.ListChildren(context.Background(), "folder-id"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer fresh-token" {
		t.Errorf("auth header = %q after SetAuthToken", gotAuth)
	}
}
