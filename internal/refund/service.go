// Package refund implements the refund collaborator service described by
// spec.md §6: guardrail checks against an existing PaymentRecord, then a
// Pending RefundRecord creation and an idempotency key, before handing off
// to the provider.
package refund

import (
	"context"
	"errors"

	"github.com/backmoon7/webhookengine/internal/idkey"
	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/store"
	"github.com/backmoon7/webhookengine/pkg/idgen"
)

var (
	ErrPaymentNotFound   = errors.New("refund: payment record not found")
	ErrNotOwner          = errors.New("refund: payment record not owned by user")
	ErrPaymentNotSettled = errors.New("refund: payment is not in succeeded status")
	ErrNoPaymentIntent   = errors.New("refund: payment has no payment_intent_id")
)

// Request is the collaborator's input, per the `/refunds` body.
type Request struct {
	UserID            int64
	BusinessRefundID  string
	BusinessPaymentID string
	IdempotencyKey    string
}

// Result is returned to the caller alongside the created RefundRecord.
type Result struct {
	RefundRecord   *model.RefundRecord
	IdempotencyKey string
}

// Service runs the guardrail checks and mints the Pending refund row. It
// does not call out to the provider; that call is the HTTP layer's
// collaborator, injected separately so this package stays testable without
// network access.
type Service struct {
	Payments store.PaymentStore
	Refunds  store.RefundStore
}

func NewService(payments store.PaymentStore, refunds store.RefundStore) *Service {
	return &Service{Payments: payments, Refunds: refunds}
}

// Create validates the guardrails of spec.md §6 and creates a Pending
// RefundRecord. If req.BusinessRefundID is empty, one is minted.
func (s *Service) Create(ctx context.Context, req Request) (*Result, error) {
	payment, err := s.Payments.GetByBusinessID(ctx, req.BusinessPaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.UserID != req.UserID {
		return nil, ErrNotOwner
	}
	if payment.Status != model.PaymentStatusSucceeded {
		return nil, ErrPaymentNotSettled
	}
	if payment.PaymentIntentID == nil || *payment.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}

	businessRefundID := req.BusinessRefundID
	if businessRefundID == "" {
		businessRefundID = idgen.GenerateRefundNo()
	}

	rec := &model.RefundRecord{
		UserID:            req.UserID,
		BusinessRefundID:  businessRefundID,
		BusinessPaymentID: req.BusinessPaymentID,
		Status:            model.RefundStatusPending,
		PaymentIntentID:   payment.PaymentIntentID,
	}
	if err := s.Refunds.Save(ctx, rec); err != nil {
		return nil, err
	}

	// A caller-supplied idempotency key is honored verbatim so retries of
	// the same logical request reuse it; only mint one from the business
	// refund id when the caller didn't send one.
	key := req.IdempotencyKey
	if key == "" {
		key, err = idkey.Create("refund", businessRefundID)
		if err != nil {
			return nil, err
		}
	}

	return &Result{RefundRecord: rec, IdempotencyKey: key}, nil
}
