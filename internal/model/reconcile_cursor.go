package model

import "time"

// ReconcileCursor persists the periodic background job's local high-water
// mark, so unattended runs don't depend on a caller-supplied
// starting_after_event_id (DESIGN.md, "Local high-water mark for
// reconciliation"). The caller-driven /reconcile endpoint's contract is
// unaffected; this is purely the unattended job's bookkeeping.
type ReconcileCursor struct {
	Name        string    `gorm:"type:varchar(64);primaryKey"`
	LastEventID string    `gorm:"type:varchar(128)"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ReconcileCursor) TableName() string { return "reconcile_cursor" }
