package model

import "time"

// WebhookEventEntry is the persisted reference schema for C4 from spec.md
// §6: a uniqueness constraint on EventID is the persistence-level primitive
// enforcing I2 ((state = Succeeded) <=> (outcome.succeeded = true)).
//
// Processing = (Succeeded IS NULL); Succeeded = (Succeeded = true);
// Failed = (Succeeded = false).
type WebhookEventEntry struct {
	EventID       string     `gorm:"type:varchar(255);primaryKey" json:"event_id"`
	StartedAtUTC  time.Time  `gorm:"not null" json:"started_at_utc"`
	Succeeded     *bool      `json:"succeeded"`
	ErrorMessage  *string    `gorm:"type:text" json:"error_message"`
	RecordedAtUTC *time.Time `json:"recorded_at_utc"`
}

func (WebhookEventEntry) TableName() string {
	return "webhook_event_entry"
}
