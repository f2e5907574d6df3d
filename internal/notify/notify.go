// Package notify implements the alert notification fan-out.
// Channels are fixed at startup from configuration; each dispatch runs every
// enabled channel concurrently with independent failure domains and returns
// the joined per-channel outcomes. Delivery is best-effort: there is no retry
// queue, failures are logged and counted.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vesaa/queuewatch/internal/metrics"
)

// Event is one alert notification request handed to the dispatcher.
type Event struct {
	Entity      string
	Target      string
	TrafficKb   float64
	ThresholdKb int
	Stage       string // models.StageFirst | StageSecond | StageRecovery
	When        time.Time
}

// Channel is one notification transport. Send must honor ctx and return an
// error on delivery failure; it is called concurrently with other channels.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Result is the outcome of one channel attempt within a dispatch.
type Result struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher fans one event out to all configured channels.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
}

// NewDispatcher builds a dispatcher over the given channel list.
func NewDispatcher(channels []Channel) *Dispatcher {
	return &Dispatcher{channels: channels, timeout: 30 * time.Second}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends ev on every channel concurrently and joins the results.
// One channel's failure or timeout never blocks the others; the dispatch is
// complete once all attempts finish, regardless of individual outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []Result {
	results := make([]Result, len(d.channels))
	var wg sync.WaitGroup

	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = d.sendOne(ctx, ch, ev)
		}(i, ch)
	}
	wg.Wait()

	for _, r := range results {
		outcome := "ok"
		if !r.Success {
			outcome = "error"
			log.Printf("[notify] %s send failed for %q stage=%s: %s", r.Channel, ev.Entity, ev.Stage, r.Error)
		}
		metrics.NotifySends.WithLabelValues(r.Channel, outcome).Inc()
	}
	return results
}

func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, ev Event) Result {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// Send runs in its own goroutine so a transport that ignores the context
	// cannot hold the dispatch past the timeout: the straggler is abandoned
	// and reported as a failure. Panics are contained for the same reason —
	// a misbehaving transport must not take the poll cycle down with it.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("channel panicked: %v", r)
			}
		}()
		done <- ch.Send(sendCtx, ev)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Result{Channel: ch.Name(), Success: false, Error: err.Error()}
		}
		return Result{Channel: ch.Name(), Success: true}
	case <-sendCtx.Done():
		return Result{Channel: ch.Name(), Success: false, Error: fmt.Sprintf("send abandoned: %v", sendCtx.Err())}
	}
}
