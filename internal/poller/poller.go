// Package poller drives the fixed-interval sample-then-evaluate loop.
// Cycles are serialized: a tick that arrives while a cycle is still running is
// skipped (and counted), never queued, so two cycles can never race on the
// same entity's alert record. The manual API trigger runs through the same
// guard.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/vesaa/queuewatch/internal/alert"
	"github.com/vesaa/queuewatch/internal/metrics"
	"github.com/vesaa/queuewatch/internal/models"
	"github.com/vesaa/queuewatch/internal/router"
	"github.com/vesaa/queuewatch/internal/sampler"
)

// EntitySource lists the monitored entities at the start of each cycle.
type EntitySource interface {
	ListEntities() ([]models.MonitoredEntity, error)
}

// Poller owns the scheduling loop.
type Poller struct {
	entities  EntitySource
	router    router.Client
	sampler   *sampler.Sampler
	evaluator *alert.Evaluator
	interval  time.Duration

	inFlight atomic.Bool
}

// New builds a poller over the cycle collaborators.
func New(entities EntitySource, rc router.Client, s *sampler.Sampler, e *alert.Evaluator, interval time.Duration) *Poller {
	return &Poller{
		entities:  entities,
		router:    rc,
		sampler:   s,
		evaluator: e,
		interval:  interval,
	}
}

// Run blocks, executing one cycle per interval until ctx is canceled.
// A failed cycle is logged and counted; the loop keeps going.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[poll] polling every %s", p.interval)

	// First cycle immediately so a fresh start doesn't wait a full interval.
	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[poll] scheduler stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		if err == ErrCycleInFlight {
			metrics.CyclesSkipped.Inc()
			log.Printf("[poll] previous cycle still running — tick skipped")
			return
		}
		log.Printf("[poll] cycle failed: %v", err)
	}
}

// ErrCycleInFlight is returned when a cycle is requested while one is running.
var ErrCycleInFlight = fmt.Errorf("a poll cycle is already in flight")

// RunOnce executes exactly one cycle: fetch queues, store samples, evaluate
// every entity. Returns ErrCycleInFlight when a cycle is already running.
// A router fetch failure aborts the cycle for all entities — no partial state
// is touched.
func (p *Poller) RunOnce(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer p.inFlight.Store(false)

	started := time.Now()
	err := p.cycle(ctx)
	metrics.CycleDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Poller) cycle(ctx context.Context) error {
	entities, err := p.entities.ListEntities()
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	if len(entities) == 0 {
		return nil
	}

	queues, err := p.router.ListQueues(ctx)
	if err != nil {
		return fmt.Errorf("fetching queue rates: %w", err)
	}

	samples := p.sampler.Ingest(entities, queues)
	for _, entity := range entities {
		sample, ok := samples[entity.Name]
		if !ok {
			continue
		}
		p.evaluator.Evaluate(ctx, entity, sample)
	}
	return nil
}
