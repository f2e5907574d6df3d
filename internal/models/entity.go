// Package models defines GORM data models for QueueWatch.
package models

import (
	"time"

	"gorm.io/gorm"
)

// MonitoredEntity is a router queue under threshold monitoring.
// Name carries the full queue name including the monitoring prefix and is
// unique. Threshold is in KB/s; nil falls back to the process-wide default.
// The poll core reads entities only — rows are created and updated through
// the management API.
type MonitoredEntity struct {
	gorm.Model

	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	Target string `json:"target"` // network target, e.g. "10.0.0.14/32"

	Active bool `gorm:"default:true" json:"active"`

	// ThresholdKb: alert when rx+tx drops below this many KB/s.
	// nil = use the configured default threshold.
	ThresholdKb *int `json:"threshold_kb,omitempty"`

	// Remark is an optional operator note shown in the dashboard.
	Remark string `json:"remark"`
}

// EntitySnapshot is the DTO returned by the tracking-snapshot API: entity
// config joined with its current in-memory alert progress.
type EntitySnapshot struct {
	Name           string     `json:"name"`
	Target         string     `json:"target"`
	Active         bool       `json:"active"`
	ThresholdKb    int        `json:"threshold_kb"`
	Alerting       bool       `json:"alerting"`
	FirstCrossing  *time.Time `json:"first_crossing,omitempty"`
	FirstNotified  bool       `json:"first_notified"`
	SecondNotified bool       `json:"second_notified"`
}
