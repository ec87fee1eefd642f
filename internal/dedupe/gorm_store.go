package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is C4's relational reference implementation, backed by the
// persisted schema from spec.md §6. The unique constraint on EventID is the
// enforcement primitive for I2; TryBegin additionally locks the row
// (SELECT ... FOR UPDATE, the same idiom as the teacher's
// AccountRepository.GetByUserIDForUpdate) so the read-evaluate-write is
// serializable against a concurrent TryBegin for the same event id.
type GormStore struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

func NewGormStore(db *gorm.DB, lease time.Duration) *GormStore {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &GormStore{db: db, lease: lease, now: time.Now}
}

func (s *GormStore) TryBegin(ctx context.Context, eventID string) (bool, error) {
	acquired := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.WebhookEventEntry
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("event_id = ?", eventID).
			First(&existing).Error

		now := s.now()

		if errors.Is(err, gorm.ErrRecordNotFound) {
			acquired = true
			return tx.WithContext(ctx).Create(&model.WebhookEventEntry{
				EventID:      eventID,
				StartedAtUTC: now,
			}).Error
		}
		if err != nil {
			return err
		}

		switch {
		case existing.Succeeded != nil && *existing.Succeeded:
			acquired = false
			return nil
		case existing.Succeeded != nil && !*existing.Succeeded:
			acquired = true
		case now.Sub(existing.StartedAtUTC) >= s.lease:
			acquired = true
		default:
			acquired = false
			return nil
		}

		return tx.WithContext(ctx).
			Model(&model.WebhookEventEntry{}).
			Where("event_id = ?", eventID).
			Updates(map[string]interface{}{
				"started_at_utc": now,
				"succeeded":      nil,
				"error_message":  nil,
				"recorded_at_utc": nil,
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("dedupe: try_begin: %w", err)
	}
	return acquired, nil
}

func (s *GormStore) RecordOutcome(ctx context.Context, eventID string, outcome Outcome) error {
	now := s.now()
	succeeded := outcome.Succeeded
	var errMsg *string
	if outcome.ErrorMessage != "" {
		errMsg = &outcome.ErrorMessage
	}

	result := s.db.WithContext(ctx).
		Model(&model.WebhookEventEntry{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"succeeded":       &succeeded,
			"error_message":   errMsg,
			"recorded_at_utc": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("dedupe: record_outcome: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&model.WebhookEventEntry{
			EventID:       eventID,
			StartedAtUTC:  now,
			Succeeded:     &succeeded,
			ErrorMessage:  errMsg,
			RecordedAtUTC: &now,
		}).Error
	}
	return nil
}

func (s *GormStore) GetOutcome(ctx context.Context, eventID string) (*Outcome, bool, error) {
	var existing model.WebhookEventEntry
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedupe: get_outcome: %w", err)
	}
	if existing.Succeeded == nil {
		return nil, false, nil
	}

	outcome := &Outcome{Succeeded: *existing.Succeeded}
	if existing.ErrorMessage != nil {
		outcome.ErrorMessage = *existing.ErrorMessage
	}
	if existing.RecordedAtUTC != nil {
		outcome.RecordedAt = *existing.RecordedAtUTC
	}
	return outcome, true, nil
}
