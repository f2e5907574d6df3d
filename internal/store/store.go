// Package store manages the QueueWatch database layer.
// It initializes GORM with SQLite (default) or MySQL and exposes the
// persistence operations the poll core depends on: entity config reads,
// append-only traffic samples, open-alert bookkeeping, and the notification
// audit trail.
package store

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/queuewatch/internal/config"
	"github.com/vesaa/queuewatch/internal/models"
)

// Store wraps a gorm handle. It is constructed once at startup and shared by
// the poller, the evaluator, and the API layer.
type Store struct {
	db *gorm.DB
}

// Open opens the database and runs AutoMigrate.
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	case "mysql":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("db_dsn is required when db_driver is 'mysql'")
		}
		dialector = mysql.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported db_driver %q (use 'sqlite' or 'mysql')", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.MonitoredEntity{},
		&models.TrafficSample{},
		&models.AlertRecord{},
		&models.AlertHistoryEntry{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Printf("[db] opened %s/%s", cfg.DBDriver, cfg.DBPath)
	return &Store{db: db}, nil
}

// OpenTest opens an in-memory sqlite store for package tests.
func OpenTest() (*Store, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&models.MonitoredEntity{},
		&models.TrafficSample{},
		&models.AlertRecord{},
		&models.AlertHistoryEntry{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// ── Monitored entities ────────────────────────────────────────────────────────

// ListEntities returns all monitored entities ordered by name.
// The poll core treats the result as read-only configuration.
func (s *Store) ListEntities() ([]models.MonitoredEntity, error) {
	var out []models.MonitoredEntity
	if err := s.db.Order("name").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertEntity creates or updates an entity record by name (management API).
func (s *Store) UpsertEntity(e *models.MonitoredEntity) error {
	var existing models.MonitoredEntity
	result := s.db.Where("name = ?", e.Name).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		return s.db.Create(e).Error
	}
	if result.Error != nil {
		return result.Error
	}

	updates := map[string]any{
		"target": e.Target,
		"active": e.Active,
		"remark": e.Remark,
	}
	// Distinguish "clear threshold" from "leave unchanged": the API always
	// sends the full desired state, so nil means fall back to the default.
	updates["threshold_kb"] = e.ThresholdKb
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return err
	}
	e.ID = existing.ID
	return nil
}

// DeleteEntity removes an entity by name.
func (s *Store) DeleteEntity(name string) error {
	return s.db.Where("name = ?", name).Delete(&models.MonitoredEntity{}).Error
}

// ── Traffic samples ───────────────────────────────────────────────────────────

// AppendSample writes one immutable traffic sample.
func (s *Store) AppendSample(sample *models.TrafficSample) error {
	return s.db.Create(sample).Error
}

// LatestSample returns the most recent sample for an entity.
func (s *Store) LatestSample(entityName string) (*models.TrafficSample, error) {
	var sample models.TrafficSample
	err := s.db.Where("entity_name = ?", entityName).
		Order("captured_at desc").First(&sample).Error
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// SampleHistory returns samples for an entity in [from, to], oldest first,
// decimated to at most maxPoints by a deterministic stride: every k-th row is
// kept, where k = ceil(n / maxPoints). No random sampling, so repeated chart
// queries over the same range render identically.
func (s *Store) SampleHistory(entityName string, from, to time.Time, maxPoints int) ([]models.TrafficSample, error) {
	var rows []models.TrafficSample
	err := s.db.Where("entity_name = ? AND captured_at >= ? AND captured_at <= ?",
		entityName, from.Unix(), to.Unix()).
		Order("captured_at asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return Downsample(rows, maxPoints), nil
}

// Downsample keeps every k-th sample so at most maxPoints survive.
// maxPoints <= 0 disables decimation.
func Downsample(rows []models.TrafficSample, maxPoints int) []models.TrafficSample {
	if maxPoints <= 0 || len(rows) <= maxPoints {
		return rows
	}
	stride := (len(rows) + maxPoints - 1) / maxPoints
	out := make([]models.TrafficSample, 0, maxPoints)
	for i := 0; i < len(rows); i += stride {
		out = append(out, rows[i])
	}
	return out
}

// ── Alert records ─────────────────────────────────────────────────────────────

// FindOpenAlert returns the open AlertRecord for an entity, or nil when the
// entity has none. If the exclusivity invariant is broken (more than one open
// record), the older records are closed immediately and the newest survives;
// the caller is told how many rows were repaired so it can raise a metric.
func (s *Store) FindOpenAlert(entityName string) (*models.AlertRecord, int, error) {
	var open []models.AlertRecord
	err := s.db.Where("entity_name = ? AND end_time IS NULL", entityName).
		Order("start_time desc").Find(&open).Error
	if err != nil {
		return nil, 0, err
	}
	if len(open) == 0 {
		return nil, 0, nil
	}

	repaired := 0
	if len(open) > 1 {
		now := time.Now().UTC()
		for i := 1; i < len(open); i++ {
			if err := s.db.Model(&open[i]).Update("end_time", now).Error; err != nil {
				return nil, repaired, fmt.Errorf("closing duplicate open alert id=%d: %w", open[i].ID, err)
			}
			repaired++
		}
		log.Printf("[db] ERROR: %d duplicate open alerts for %q — closed all but the newest", repaired, entityName)
	}
	return &open[0], repaired, nil
}

// CreateAlert opens a new alert episode.
func (s *Store) CreateAlert(rec *models.AlertRecord) error {
	return s.db.Create(rec).Error
}

// MarkNotified persists an escalation flag on an open record.
// stage is models.StageFirst or models.StageSecond.
func (s *Store) MarkNotified(recordID uint, stage string) error {
	col := map[string]string{
		models.StageFirst:  "first_notified",
		models.StageSecond: "second_notified",
	}[stage]
	if col == "" {
		return fmt.Errorf("unknown escalation stage %q", stage)
	}
	return s.db.Model(&models.AlertRecord{}).Where("id = ?", recordID).
		Update(col, true).Error
}

// CloseAlert sets end_time on a record, ending the episode.
func (s *Store) CloseAlert(recordID uint, end time.Time) error {
	return s.db.Model(&models.AlertRecord{}).Where("id = ?", recordID).
		Update("end_time", end).Error
}

// OpenAlerts returns every record with end_time IS NULL, used to rebuild the
// in-memory tracker after a restart.
func (s *Store) OpenAlerts() ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	if err := s.db.Where("end_time IS NULL").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// AlertRecords returns the most recent alert episodes, newest first.
func (s *Store) AlertRecords(limit int) ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	q := s.db.Order("start_time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ── Notification history ──────────────────────────────────────────────────────

// AppendHistory records one dispatched notification in the audit trail.
func (s *Store) AppendHistory(entry *models.AlertHistoryEntry) error {
	return s.db.Create(entry).Error
}

// History returns recent audit entries, newest first.
func (s *Store) History(limit int) ([]models.AlertHistoryEntry, error) {
	var out []models.AlertHistoryEntry
	q := s.db.Order("sent_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
