// Package models defines GORM data models for QueueWatch.
package models

import (
	"gorm.io/gorm"
)

// TrafficSample is one append-only traffic reading for an entity.
// Rates are stored raw in bytes/s exactly as the router reported them, so
// history can be re-rendered at any unit later. Rows are immutable once
// written; the sampler is the only writer.
type TrafficSample struct {
	gorm.Model

	EntityName string `gorm:"index:idx_sample_entity_time;not null" json:"entity_name"`

	RxBytes int64 `json:"rx_bytes"` // ingress bytes/s
	TxBytes int64 `json:"tx_bytes"` // egress bytes/s

	// CapturedAt is the cycle wall-clock timestamp in unix seconds.
	CapturedAt int64 `gorm:"index:idx_sample_entity_time" json:"captured_at"`
}

// TotalKb returns the combined rate in KB/s, the unit thresholds use.
func (s TrafficSample) TotalKb() float64 {
	return float64(s.RxBytes+s.TxBytes) / 1024.0
}
