// Package models defines GORM data models for QueueWatch.
package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertRecord is the durable tracking row for one below-threshold episode.
// Invariant: at most one record per entity has EndTime == nil. The evaluator
// looks up the open record before creating a new one and closes it on
// recovery; the in-memory tracker is rebuilt from open records on boot.
type AlertRecord struct {
	gorm.Model

	EntityName string `gorm:"index;not null" json:"entity_name"`

	StartTime time.Time  `gorm:"not null" json:"start_time"`
	EndTime   *time.Time `gorm:"index" json:"end_time,omitempty"` // nil = open

	FirstNotified  bool `gorm:"default:false" json:"first_notified"`
	SecondNotified bool `gorm:"default:false" json:"second_notified"`
}

// Open reports whether the episode is still active.
func (a AlertRecord) Open() bool { return a.EndTime == nil }

// Alert stages as recorded in history entries and rendered in notifications.
const (
	StageFirst    = "first"
	StageSecond   = "second"
	StageRecovery = "recovery"
)

// AlertHistoryEntry is the immutable audit trail of every notification that
// was actually dispatched, distinct from AlertRecord's mutable tracking row.
type AlertHistoryEntry struct {
	gorm.Model

	EntityName  string    `gorm:"index" json:"entity_name"`
	Stage       string    `json:"stage"` // first | second | recovery
	TrafficKb   float64   `json:"traffic_kb"`
	ThresholdKb int       `json:"threshold_kb"`
	SentAt      time.Time `gorm:"index" json:"sent_at"`
}
