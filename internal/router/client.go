// Package router implements the queue-rate collaborator: fetching the current
// per-queue traffic counters from the router. Two transports are provided —
// the RouterOS-style REST API (default) and an SSH print script for firmwares
// without the REST service. Both return the same Queue shape; the poll core is
// agnostic to the transport.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Queue is one queue row as reported by the router. Rate is the raw
// "<rx>/<tx>" string in bytes/second; parsing happens in the sampler.
type Queue struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	Rate   string `json:"rate"`
}

// Client lists the router's queues. A failed call means no rates are available
// for any entity this cycle — there is no partial fetch.
type Client interface {
	ListQueues(ctx context.Context) ([]Queue, error)
}

// RESTClient talks to the router's REST API (GET /rest/queue/simple) with
// basic auth. Transient failures are retried with exponential backoff up to
// maxAttempts; the caller sees only the final error.
type RESTClient struct {
	base        string
	user, pass  string
	maxAttempts int
	http        *http.Client
}

// NewRESTClient builds a REST transport for the given router address.
// addr is host or host:port; the scheme is plain http as RouterOS serves the
// REST API on the www service.
func NewRESTClient(addr, user, pass string, timeout time.Duration, maxAttempts int) *RESTClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RESTClient{
		base:        fmt.Sprintf("http://%s", addr),
		user:        user,
		pass:        pass,
		maxAttempts: maxAttempts,
		http:        &http.Client{Timeout: timeout},
	}
}

// ListQueues fetches all simple queues from the router.
func (c *RESTClient) ListQueues(ctx context.Context) ([]Queue, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		queues, err := c.fetch(ctx)
		if err == nil {
			return queues, nil
		}
		lastErr = err
		if attempt < c.maxAttempts {
			log.Printf("[router] attempt %d/%d failed: %v — retrying in %s", attempt, c.maxAttempts, err, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("listing queues after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *RESTClient) fetch(ctx context.Context) ([]Queue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rest/queue/simple", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("router rejected credentials (401)")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("router returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var queues []Queue
	if err := json.Unmarshal(body, &queues); err != nil {
		return nil, fmt.Errorf("decoding queue list: %w", err)
	}
	return queues, nil
}
