package store

import (
	"context"
	"errors"
	"sync"

	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionStore is C5's seam for SubscriptionRecord.
type SubscriptionStore interface {
	Save(ctx context.Context, rec *model.SubscriptionRecord) error
	GetByBusinessID(ctx context.Context, businessID string) (*model.SubscriptionRecord, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.SubscriptionRecord, error)
}

type MemorySubscriptionStore struct {
	mu      sync.RWMutex
	records map[string]*model.SubscriptionRecord
	bySid   map[string]string
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{
		records: make(map[string]*model.SubscriptionRecord),
		bySid:   make(map[string]string),
	}
}

func (s *MemorySubscriptionStore) Save(ctx context.Context, rec *model.SubscriptionRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessSubscriptionID == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.BusinessSubscriptionID]; ok && existing.SubscriptionID != nil {
		if rec.SubscriptionID == nil || *existing.SubscriptionID != *rec.SubscriptionID {
			delete(s.bySid, *existing.SubscriptionID)
		}
	}

	copyRec := *rec
	s.records[rec.BusinessSubscriptionID] = &copyRec
	if rec.SubscriptionID != nil && *rec.SubscriptionID != "" {
		s.bySid[*rec.SubscriptionID] = rec.BusinessSubscriptionID
	}
	return nil
}

func (s *MemorySubscriptionStore) GetByBusinessID(ctx context.Context, businessID string) (*model.SubscriptionRecord, error) {
	if businessID == "" {
		return nil, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[businessID]
	if !ok {
		return nil, nil
	}
	copyRec := *rec
	return &copyRec, nil
}

func (s *MemorySubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (*model.SubscriptionRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.bySid[providerID]
	if !ok {
		return nil, nil
	}
	rec, ok := s.records[bid]
	if !ok {
		return nil, nil
	}
	copyRec := *rec
	return &copyRec, nil
}

type GormSubscriptionStore struct {
	db *gorm.DB
}

func NewGormSubscriptionStore(db *gorm.DB) *GormSubscriptionStore {
	return &GormSubscriptionStore{db: db}
}

func (s *GormSubscriptionStore) Save(ctx context.Context, rec *model.SubscriptionRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessSubscriptionID == "" {
		return ErrEmptyID
	}
	// See GormPaymentStore.Save: a plain Save() against a pre-populated
	// business-id primary key never inserts, it only ever updates.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_subscription_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormSubscriptionStore) GetByBusinessID(ctx context.Context, businessID string) (*model.SubscriptionRecord, error) {
	if businessID == "" {
		return nil, ErrEmptyID
	}
	var rec model.SubscriptionRecord
	err := s.db.WithContext(ctx).Where("business_subscription_id = ?", businessID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormSubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (*model.SubscriptionRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	var rec model.SubscriptionRecord
	err := s.db.WithContext(ctx).Where("subscription_id = ?", providerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
