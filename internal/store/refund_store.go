package store

import (
	"context"
	"errors"
	"sync"

	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundStore is C5's seam for RefundRecord.
type RefundStore interface {
	Save(ctx context.Context, rec *model.RefundRecord) error
	GetByBusinessID(ctx context.Context, businessID string) (*model.RefundRecord, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.RefundRecord, error)
}

type MemoryRefundStore struct {
	mu      sync.RWMutex
	records map[string]*model.RefundRecord
	byRid   map[string]string
}

func NewMemoryRefundStore() *MemoryRefundStore {
	return &MemoryRefundStore{
		records: make(map[string]*model.RefundRecord),
		byRid:   make(map[string]string),
	}
}

func (s *MemoryRefundStore) Save(ctx context.Context, rec *model.RefundRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessRefundID == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.BusinessRefundID]; ok && existing.RefundID != nil {
		if rec.RefundID == nil || *existing.RefundID != *rec.RefundID {
			delete(s.byRid, *existing.RefundID)
		}
	}

	copyRec := *rec
	s.records[rec.BusinessRefundID] = &copyRec
	if rec.RefundID != nil && *rec.RefundID != "" {
		s.byRid[*rec.RefundID] = rec.BusinessRefundID
	}
	return nil
}

func (s *MemoryRefundStore) GetByBusinessID(ctx context.Context, businessID string) (*model.RefundRecord, error) {
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

func (s *MemoryRefundStore) GetByProviderID(ctx context.Context, providerID string) (*model.RefundRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.byRid[providerID]
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

type GormRefundStore struct {
	db *gorm.DB
}

func NewGormRefundStore(db *gorm.DB) *GormRefundStore {
	return &GormRefundStore{db: db}
}

func (s *GormRefundStore) Save(ctx context.Context, rec *model.RefundRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessRefundID == "" {
		return ErrEmptyID
	}
	// See GormPaymentStore.Save: a plain Save() against a pre-populated
	// business-id primary key never inserts, it only ever updates.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_refund_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormRefundStore) GetByBusinessID(ctx context.Context, businessID string) (*model.RefundRecord, error) {
	if businessID == "" {
		return nil, ErrEmptyID
	}
	var rec model.RefundRecord
	err := s.db.WithContext(ctx).Where("business_refund_id = ?", businessID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormRefundStore) GetByProviderID(ctx context.Context, providerID string) (*model.RefundRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	var rec model.RefundRecord
	err := s.db.WithContext(ctx).Where("refund_id = ?", providerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
