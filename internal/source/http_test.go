package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastBackoff() Backoff {
	return Backoff{Base: time.Millisecond, Ceiling: 5 * time.Millisecond, MaxAttempts: 3}
}

func TestDoJSON_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c, err := NewHTTPClient(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.DoJSON(context.Background(), http.MethodGet, "/thing", nil, nil, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded response")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestDoJSON_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewHTTPClient(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	err = c.DoJSON(context.Background(), http.MethodGet, "/thing", nil, nil, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3 (MaxAttempts)", got)
	}
}

func TestDoJSON_RejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad category", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c, err := NewHTTPClient(server.URL, "token", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	err = c.DoJSON(context.Background(), http.MethodPost, "/thing", nil, map[string]string{"a": "b"}, nil)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (no retry)", got)
	}
}

func TestDoJSON_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewHTTPClient(server.URL, "sekrit", time.Second, fastBackoff())
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil, nil); err != nil {
		t.Errorf("DoJSON failed: %v", err)
	}
}

func TestBackoffDelay_Bounded(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Ceiling: time.Second, MaxAttempts: 10}
	for attempt := 1; attempt < 10; attempt++ {
		d := b.delay(attempt)
		if d <= 0 || d > b.Ceiling {
			t.Errorf("delay(%d) = %v, want in (0, %v]", attempt, d, b.Ceiling)
		}
	}
}
