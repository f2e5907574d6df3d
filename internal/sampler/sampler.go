// Package sampler normalizes raw router queue rates into traffic samples.
// It indexes the router's queue list by name (restricted to the monitored
// naming prefix), parses the "<rx>/<tx>" rate strings, and appends exactly one
// immutable sample per monitored entity per cycle.
package sampler

import (
	"log"
	"strconv"
	"strings"

	"github.com/vesaa/queuewatch/internal/clock"
	"github.com/vesaa/queuewatch/internal/models"
	"github.com/vesaa/queuewatch/internal/router"
)

// SampleStore is the slice of persistence the sampler needs.
type SampleStore interface {
	AppendSample(sample *models.TrafficSample) error
}

// Sampler converts queue rows into stored samples.
type Sampler struct {
	store  SampleStore
	clock  clock.Clock
	prefix string
}

// New builds a sampler. prefix is the monitored-queue naming convention;
// queue rows whose name does not start with it are ignored.
func New(store SampleStore, clk clock.Clock, prefix string) *Sampler {
	return &Sampler{store: store, clock: clk, prefix: prefix}
}

// Ingest produces one normalized sample per monitored entity from this
// cycle's queue list and persists each. An entity whose queue is missing from
// the router response, or whose rate string is malformed, samples as 0/0
// rather than failing. A failed write for one entity is logged and does not
// abort the cycle — the in-memory sample is still returned so evaluation
// proceeds for everyone.
func (s *Sampler) Ingest(entities []models.MonitoredEntity, queues []router.Queue) map[string]models.TrafficSample {
	rates := make(map[string]string, len(queues))
	for _, q := range queues {
		if !strings.HasPrefix(q.Name, s.prefix) {
			continue
		}
		rates[q.Name] = q.Rate
	}

	now := s.clock.Now().Unix()
	out := make(map[string]models.TrafficSample, len(entities))

	for _, entity := range entities {
		rx, tx := ParseRate(rates[entity.Name])
		sample := models.TrafficSample{
			EntityName: entity.Name,
			RxBytes:    rx,
			TxBytes:    tx,
			CapturedAt: now,
		}
		if err := s.store.AppendSample(&sample); err != nil {
			log.Printf("[sample] persisting sample for %q: %v", entity.Name, err)
		}
		out[entity.Name] = sample
	}
	return out
}

// ParseRate splits a "<rx>/<tx>" rate string into bytes/s values.
// Missing or malformed parts default to 0 — one bad queue must never block
// the whole cycle.
func ParseRate(rate string) (rx, tx int64) {
	parts := strings.SplitN(rate, "/", 2)
	rx = parsePart(parts[0])
	if len(parts) == 2 {
		tx = parsePart(parts[1])
	}
	return rx, tx
}

func parsePart(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
