package alert

import (
	"context"
	"log"
	"time"

	"github.com/vesaa/queuewatch/internal/clock"
	"github.com/vesaa/queuewatch/internal/metrics"
	"github.com/vesaa/queuewatch/internal/models"
	"github.com/vesaa/queuewatch/internal/notify"
)

// Store is the slice of persistence the evaluator needs.
type Store interface {
	FindOpenAlert(entityName string) (*models.AlertRecord, int, error)
	CreateAlert(rec *models.AlertRecord) error
	MarkNotified(recordID uint, stage string) error
	CloseAlert(recordID uint, end time.Time) error
	OpenAlerts() ([]models.AlertRecord, error)
	AppendHistory(entry *models.AlertHistoryEntry) error
}

// Notifier dispatches one alert event and reports per-channel outcomes.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) []notify.Result
}

// Options carry the escalation policy.
type Options struct {
	DefaultThresholdKb int
	FirstAlertDelay    time.Duration
	SecondAlertDelay   time.Duration
	NotifyOnRecovery   bool
}

// Evaluator drives the per-entity alert state machine:
//
//	Normal → BelowThreshold → FirstNotified → SecondNotified → Normal (recovery)
//
// One entity advances by at most one transition per cycle; the second stage is
// unreachable until the first has fired, so stages never skip. Persistence
// failures are logged and the in-memory state still advances — a crash between
// the two loses at most one cycle's transition, which the boot-time restore
// absorbs.
type Evaluator struct {
	store    Store
	notifier Notifier
	clock    clock.Clock
	tracker  *Tracker
	opts     Options
}

// NewEvaluator builds an evaluator over the given collaborators.
func NewEvaluator(store Store, notifier Notifier, clk clock.Clock, tracker *Tracker, opts Options) *Evaluator {
	return &Evaluator{store: store, notifier: notifier, clock: clk, tracker: tracker, opts: opts}
}

// Tracker exposes the in-memory state for the snapshot API.
func (e *Evaluator) Tracker() *Tracker { return e.tracker }

// Restore rebuilds the tracker from durable open alert records. Call once on
// boot before the first cycle.
func (e *Evaluator) Restore() error {
	open, err := e.store.OpenAlerts()
	if err != nil {
		return err
	}
	e.tracker.Restore(open)
	metrics.OpenAlerts.Set(float64(e.tracker.Len()))
	if len(open) > 0 {
		log.Printf("[alert] restored %d open alert(s) from database", len(open))
	}
	return nil
}

// Evaluate runs one state-machine step for one entity against its latest
// sample. Inactive entities are skipped entirely: nothing is opened, escalated,
// or closed while the flag is off, and any open episode is preserved untouched.
func (e *Evaluator) Evaluate(ctx context.Context, entity models.MonitoredEntity, sample models.TrafficSample) {
	if !entity.Active {
		return
	}

	threshold := e.opts.DefaultThresholdKb
	if entity.ThresholdKb != nil {
		threshold = *entity.ThresholdKb
	}
	totalKb := sample.TotalKb()
	now := e.clock.Now()

	if totalKb < float64(threshold) {
		e.evaluateBelow(ctx, entity, totalKb, threshold, now)
	} else {
		e.evaluateRecovered(ctx, entity, totalKb, threshold, now)
	}
	metrics.OpenAlerts.Set(float64(e.tracker.Len()))
}

// evaluateBelow handles the below-threshold side: open a new episode, or fire
// whichever single escalation stage is due. The branches are mutually
// exclusive within one cycle.
func (e *Evaluator) evaluateBelow(ctx context.Context, entity models.MonitoredEntity, totalKb float64, threshold int, now time.Time) {
	name := entity.Name
	st, tracked := e.tracker.Get(name)

	switch {
	case !tracked:
		e.openEpisode(name, now)

	case !st.FirstNotified && now.Sub(st.FirstCrossing) >= e.opts.FirstAlertDelay:
		e.fireStage(ctx, entity, st, models.StageFirst, totalKb, threshold, now)

	case st.FirstNotified && !st.SecondNotified && now.Sub(st.FirstCrossing) >= e.opts.SecondAlertDelay:
		e.fireStage(ctx, entity, st, models.StageSecond, totalKb, threshold, now)
	}
}

// openEpisode starts tracking a below-threshold crossing. The durable open
// record is looked up first: exactly one open record per entity may exist, and
// if one is already there (restart race, repaired duplicate) it is adopted
// rather than duplicated — the AlertRecord is the source of truth.
func (e *Evaluator) openEpisode(name string, now time.Time) {
	existing, repaired, err := e.store.FindOpenAlert(name)
	if repaired > 0 {
		metrics.InvariantRepairs.Add(float64(repaired))
	}
	if err != nil {
		log.Printf("[alert] open-record lookup for %q: %v", name, err)
	}
	if existing != nil {
		e.tracker.Set(name, State{
			FirstCrossing:  existing.StartTime,
			FirstNotified:  existing.FirstNotified,
			SecondNotified: existing.SecondNotified,
			RecordID:       existing.ID,
		})
		return
	}

	rec := models.AlertRecord{EntityName: name, StartTime: now}
	if err := e.store.CreateAlert(&rec); err != nil {
		// Optimistic: keep tracking in memory; the zero RecordID is healed on
		// the next lookup or restart.
		log.Printf("[alert] persisting new alert for %q: %v", name, err)
	}
	e.tracker.Set(name, State{FirstCrossing: now, RecordID: rec.ID})
	log.Printf("[alert] %q dropped below threshold — tracking started", name)
}

// fireStage dispatches one escalation notification and marks the stage as
// notified. The stage counts as attempted once every channel has finished,
// regardless of individual channel outcomes.
func (e *Evaluator) fireStage(ctx context.Context, entity models.MonitoredEntity, st State, stage string, totalKb float64, threshold int, now time.Time) {
	if st.RecordID == 0 {
		// The open-time record write failed. Retry the lookup so the flag can
		// still land on the durable record instead of staying memory-only for
		// the rest of the episode.
		if existing, repaired, err := e.store.FindOpenAlert(entity.Name); err == nil && existing != nil {
			st.RecordID = existing.ID
			if repaired > 0 {
				metrics.InvariantRepairs.Add(float64(repaired))
			}
		}
	}

	e.notifier.Dispatch(ctx, notify.Event{
		Entity:      entity.Name,
		Target:      entity.Target,
		TrafficKb:   totalKb,
		ThresholdKb: threshold,
		Stage:       stage,
		When:        now,
	})

	switch stage {
	case models.StageFirst:
		st.FirstNotified = true
	case models.StageSecond:
		st.SecondNotified = true
	}
	e.tracker.Set(entity.Name, st)

	if st.RecordID != 0 {
		if err := e.store.MarkNotified(st.RecordID, stage); err != nil {
			log.Printf("[alert] persisting %s-notified flag for %q: %v", stage, entity.Name, err)
		}
	}
	e.appendHistory(entity.Name, stage, totalKb, threshold, now)
	log.Printf("[alert] %s notification sent for %q (%.1f KB/s < %d KB/s)", stage, entity.Name, totalKb, threshold)
}

// evaluateRecovered closes an episode when traffic is back at or above the
// threshold. The recovery notification is optional by configuration, but the
// record is closed and tracking dropped either way.
func (e *Evaluator) evaluateRecovered(ctx context.Context, entity models.MonitoredEntity, totalKb float64, threshold int, now time.Time) {
	name := entity.Name
	st, tracked := e.tracker.Get(name)
	if !tracked {
		return
	}

	if e.opts.NotifyOnRecovery {
		e.notifier.Dispatch(ctx, notify.Event{
			Entity:      name,
			Target:      entity.Target,
			TrafficKb:   totalKb,
			ThresholdKb: threshold,
			Stage:       models.StageRecovery,
			When:        now,
		})
		e.appendHistory(name, models.StageRecovery, totalKb, threshold, now)
	}

	recordID := st.RecordID
	if recordID == 0 {
		// Record write failed at open time; try to find it before closing.
		if existing, repaired, err := e.store.FindOpenAlert(name); err == nil && existing != nil {
			recordID = existing.ID
			if repaired > 0 {
				metrics.InvariantRepairs.Add(float64(repaired))
			}
		}
	}
	if recordID != 0 {
		if err := e.store.CloseAlert(recordID, now); err != nil {
			log.Printf("[alert] closing alert record for %q: %v", name, err)
		}
	}
	e.tracker.Delete(name)
	log.Printf("[alert] %q recovered (%.1f KB/s >= %d KB/s)", name, totalKb, threshold)
}

func (e *Evaluator) appendHistory(name, stage string, totalKb float64, threshold int, now time.Time) {
	entry := models.AlertHistoryEntry{
		EntityName:  name,
		Stage:       stage,
		TrafficKb:   totalKb,
		ThresholdKb: threshold,
		SentAt:      now,
	}
	if err := e.store.AppendHistory(&entry); err != nil {
		log.Printf("[alert] appending history for %q: %v", name, err)
	}
}
