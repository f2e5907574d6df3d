package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestListQueuesDecodesResponse(t *testing.T) {
	var gotPath, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"mon-a","target":"10.0.0.14/32","rate":"1024/2048"},{"name":"other","target":"","rate":"0/0"}]`))
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "secret", 2*time.Second, 1)
	queues, err := c.ListQueues(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotPath != "/rest/queue/simple" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "api" {
		t.Fatalf("basic auth user = %q", gotUser)
	}
	if len(queues) != 2 || queues[0].Name != "mon-a" || queues[0].Rate != "1024/2048" {
		t.Fatalf("decoded queues wrong: %+v", queues)
	}
}

func TestListQueuesRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "wrong", 2*time.Second, 1)
	_, err := c.ListQueues(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestListQueuesRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"name":"mon-a","target":"t","rate":"1/1"}]`))
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "secret", 2*time.Second, 3)
	queues, err := c.ListQueues(context.Background())
	if err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
	if len(queues) != 1 {
		t.Fatalf("queues: %+v", queues)
	}
}

func TestListQueuesBoundedAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "secret", 2*time.Second, 2)
	_, err := c.ListQueues(context.Background())
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls.Load() != 2 {
		t.Fatalf("attempts = %d, want 2", calls.Load())
	}
}

func TestListQueuesCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "secret", 2*time.Second, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ListQueues(ctx)
	if err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancellation did not cut the backoff short")
	}
}

func TestListQueuesBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(strings.TrimPrefix(srv.URL, "http://"), "api", "secret", 2*time.Second, 1)
	if _, err := c.ListQueues(context.Background()); err == nil || !strings.Contains(err.Error(), "decoding") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
