package refund

import (
	"context"
	"testing"

	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func seedPayment(t *testing.T, payments store.PaymentStore, overrides func(*model.PaymentRecord)) {
	t.Helper()
	rec := &model.PaymentRecord{
		UserID:            7,
		BusinessPaymentID: "biz_pay_1",
		Status:            model.PaymentStatusSucceeded,
		PaymentIntentID:   strPtr("pi_1"),
	}
	if overrides != nil {
		overrides(rec)
	}
	require.NoError(t, payments.Save(context.Background(), rec))
}

func TestService_Create_Succeeds(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()
	seedPayment(t, payments, nil)

	s := NewService(payments, refunds)
	res, err := s.Create(context.Background(), Request{
		UserID:            7,
		BusinessPaymentID: "biz_pay_1",
		BusinessRefundID:  "biz_refund_1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusPending, res.RefundRecord.Status)
	assert.Equal(t, "pi_1", *res.RefundRecord.PaymentIntentID)
	assert.Equal(t, "refund:biz_refund_1", res.IdempotencyKey)
}

func TestService_Create_MintsIDWhenAbsent(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()
	seedPayment(t, payments, nil)

	s := NewService(payments, refunds)
	res, err := s.Create(context.Background(), Request{UserID: 7, BusinessPaymentID: "biz_pay_1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefundRecord.BusinessRefundID)
}

func TestService_Create_RejectsUnknownPayment(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()

	s := NewService(payments, refunds)
	_, err := s.Create(context.Background(), Request{UserID: 7, BusinessPaymentID: "missing"})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestService_Create_RejectsWrongOwner(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()
	seedPayment(t, payments, nil)

	s := NewService(payments, refunds)
	_, err := s.Create(context.Background(), Request{UserID: 999, BusinessPaymentID: "biz_pay_1"})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestService_Create_RejectsUnsettledPayment(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()
	seedPayment(t, payments, func(r *model.PaymentRecord) { r.Status = model.PaymentStatusPending })

	s := NewService(payments, refunds)
	_, err := s.Create(context.Background(), Request{UserID: 7, BusinessPaymentID: "biz_pay_1"})
	assert.ErrorIs(t, err, ErrPaymentNotSettled)
}

func TestService_Create_RejectsMissingPaymentIntent(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	refunds := store.NewMemoryRefundStore()
	seedPayment(t, payments, func(r *model.PaymentRecord) { r.PaymentIntentID = nil })

	s := NewService(payments, refunds)
	_, err := s.Create(context.Background(), Request{UserID: 7, BusinessPaymentID: "biz_pay_1"})
	assert.ErrorIs(t, err, ErrNoPaymentIntent)
}
