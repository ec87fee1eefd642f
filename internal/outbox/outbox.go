// Package outbox implements the outbox-pattern publication of convergence
// outcomes onto Kafka: the engine stages a row immediately after it saves a
// successor record, as a separate write (not in the record's transaction),
// and a background sender drains it at-least-once.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/backmoon7/webhookengine/internal/convergence"
	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/gorm"
)

// Repository persists staged outbox rows and lets the sender drain them.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Stage writes a pending row for evt. Topic is the destination Kafka topic;
// the message key is the event's business id so partitioning keeps a given
// record's events ordered.
func (r *Repository) Stage(ctx context.Context, topic string, evt convergence.DomainEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &model.OutboxMessage{
		MessageKey: evt.BusinessID,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *Repository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) IncrementRetryCount(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *Repository) MarkAsFailed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.OutboxStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}
