package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vesaa/queuewatch/internal/alert"
	"github.com/vesaa/queuewatch/internal/clock"
	"github.com/vesaa/queuewatch/internal/models"
	"github.com/vesaa/queuewatch/internal/notify"
	"github.com/vesaa/queuewatch/internal/router"
	"github.com/vesaa/queuewatch/internal/sampler"
	"github.com/vesaa/queuewatch/internal/store"
)

type fakeRouter struct {
	queues []router.Queue
	err    error
	block  chan struct{} // when set, ListQueues waits until it is closed
	calls  atomic.Int32
}

func (f *fakeRouter) ListQueues(ctx context.Context) ([]router.Queue, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.queues, nil
}

func newPollerForTest(t *testing.T, rc router.Client) (*Poller, *store.Store) {
	t.Helper()
	st, err := store.OpenTest()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	clk := clock.Real{}
	ev := alert.NewEvaluator(st, notify.NewDispatcher(nil), clk, alert.NewTracker(), alert.Options{
		DefaultThresholdKb: 10,
		FirstAlertDelay:    5 * time.Minute,
		SecondAlertDelay:   60 * time.Minute,
	})
	s := sampler.New(st, clk, "mon-")
	return New(st, rc, s, ev, time.Minute), st
}

func TestRunOnceSamplesAndEvaluates(t *testing.T) {
	rc := &fakeRouter{queues: []router.Queue{
		{Name: "mon-a", Target: "10.0.0.14/32", Rate: "0/0"},
		{Name: "mon-b", Target: "10.0.0.15/32", Rate: "204800/0"},
	}}
	p, st := newPollerForTest(t, rc)

	for _, name := range []string{"mon-a", "mon-b"} {
		if err := st.UpsertEntity(&models.MonitoredEntity{Name: name, Active: true}); err != nil {
			t.Fatalf("seed entity: %v", err)
		}
	}

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// One sample per entity.
	for _, name := range []string{"mon-a", "mon-b"} {
		if _, err := st.LatestSample(name); err != nil {
			t.Fatalf("no sample for %s: %v", name, err)
		}
	}

	// mon-a is below threshold: an open alert record exists; mon-b is not.
	open, err := st.OpenAlerts()
	if err != nil {
		t.Fatalf("open alerts: %v", err)
	}
	if len(open) != 1 || open[0].EntityName != "mon-a" {
		t.Fatalf("expected one open alert for mon-a, got %+v", open)
	}
}

func TestRunOnceRouterFailureAbortsCycle(t *testing.T) {
	rc := &fakeRouter{err: errors.New("connection refused")}
	p, st := newPollerForTest(t, rc)
	if err := st.UpsertEntity(&models.MonitoredEntity{Name: "mon-a", Active: true}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	if err := p.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected cycle failure")
	}

	// No samples, no alert state: the cycle aborted before touching anything.
	if _, err := st.LatestSample("mon-a"); err == nil {
		t.Fatalf("sample written despite router failure")
	}
	open, _ := st.OpenAlerts()
	if len(open) != 0 {
		t.Fatalf("alert state touched despite router failure: %+v", open)
	}
}

func TestRunOnceWithoutEntitiesSkipsRouter(t *testing.T) {
	rc := &fakeRouter{}
	p, _ := newPollerForTest(t, rc)

	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if rc.calls.Load() != 0 {
		t.Fatalf("router queried with no entities configured")
	}
}

func TestRunOnceSerialized(t *testing.T) {
	rc := &fakeRouter{block: make(chan struct{})}
	p, st := newPollerForTest(t, rc)
	if err := st.UpsertEntity(&models.MonitoredEntity{Name: "mon-a", Active: true}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- p.RunOnce(context.Background()) }()

	// Wait until the first cycle is inside the router fetch.
	deadline := time.After(2 * time.Second)
	for rc.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first cycle never reached the router")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if err := p.RunOnce(context.Background()); err != ErrCycleInFlight {
		t.Fatalf("overlapping cycle returned %v, want ErrCycleInFlight", err)
	}

	close(rc.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// The guard is released: a new cycle may run again.
	if err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("post-completion cycle: %v", err)
	}
}
