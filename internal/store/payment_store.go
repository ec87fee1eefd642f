// Package store implements the record stores (C5): parallel, independent
// stores for payments, subscriptions, and refunds, each with bidirectional
// lookup (business-id <-> provider-id) and idempotent upsert, per spec.md
// §4.5.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEmptyID   = errors.New("store: id must not be empty")
	ErrNilRecord = errors.New("store: record must not be nil")
	ErrNotFound  = errors.New("store: record not found")
)

// PaymentStore is C5's seam for PaymentRecord.
type PaymentStore interface {
	Save(ctx context.Context, rec *model.PaymentRecord) error
	GetByBusinessID(ctx context.Context, businessID string) (*model.PaymentRecord, error)
	GetByProviderID(ctx context.Context, providerID string) (*model.PaymentRecord, error)
}

// MemoryPaymentStore is the in-memory reference implementation: a concurrent
// map with a secondary index, per the teacher's design note on store seams.
type MemoryPaymentStore struct {
	mu      sync.RWMutex
	records map[string]*model.PaymentRecord // business id -> record
	byPid   map[string]string               // provider id -> business id
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{
		records: make(map[string]*model.PaymentRecord),
		byPid:   make(map[string]string),
	}
}

func (s *MemoryPaymentStore) Save(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessPaymentID == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.BusinessPaymentID]; ok && existing.PaymentIntentID != nil {
		if rec.PaymentIntentID == nil || *existing.PaymentIntentID != *rec.PaymentIntentID {
			delete(s.byPid, *existing.PaymentIntentID) // I6: drop stale mapping first
		}
	}

	copyRec := *rec
	s.records[rec.BusinessPaymentID] = &copyRec
	if rec.PaymentIntentID != nil && *rec.PaymentIntentID != "" {
		s.byPid[*rec.PaymentIntentID] = rec.BusinessPaymentID
	}
	return nil
}

func (s *MemoryPaymentStore) GetByBusinessID(ctx context.Context, businessID string) (*model.PaymentRecord, error) {
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

func (s *MemoryPaymentStore) GetByProviderID(ctx context.Context, providerID string) (*model.PaymentRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.byPid[providerID]
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

// GormPaymentStore is C5's relational implementation. The provider-id
// secondary index is a unique index on the column itself (see
// model.PaymentRecord), so I6 is enforced by the database: writing a new
// provider id for a record that previously held a different one simply
// overwrites the indexed column in the same row update.
type GormPaymentStore struct {
	db *gorm.DB
}

func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

func (s *GormPaymentStore) Save(ctx context.Context, rec *model.PaymentRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if rec.BusinessPaymentID == "" {
		return ErrEmptyID
	}
	// Save would issue a bare UPDATE (the primary key is the pre-populated
	// business id, never a zero value), matching zero rows on a first write
	// and silently doing nothing. Upsert on the business id instead, the
	// same clause.OnConflict idiom as the teacher's AccountRepository.GetOrCreate.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_payment_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormPaymentStore) GetByBusinessID(ctx context.Context, businessID string) (*model.PaymentRecord, error) {
	if businessID == "" {
		return nil, ErrEmptyID
	}
	var rec model.PaymentRecord
	err := s.db.WithContext(ctx).Where("business_payment_id = ?", businessID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormPaymentStore) GetByProviderID(ctx context.Context, providerID string) (*model.PaymentRecord, error) {
	if providerID == "" {
		return nil, ErrEmptyID
	}
	var rec model.PaymentRecord
	err := s.db.WithContext(ctx).Where("payment_intent_id = ?", providerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
