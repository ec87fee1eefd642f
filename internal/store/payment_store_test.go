package store

import (
	"context"
	"testing"

	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMemoryPaymentStore_SaveAndLookupBothDirections(t *testing.T) {
	s := NewMemoryPaymentStore()
	ctx := context.Background()

	rec := &model.PaymentRecord{
		UserID:            1,
		BusinessPaymentID: "biz_pay_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}
	require.NoError(t, s.Save(ctx, rec))

	byBid, err := s.GetByBusinessID(ctx, "biz_pay_1")
	require.NoError(t, err)
	require.NotNil(t, byBid)
	assert.Equal(t, "pi_1", *byBid.PaymentIntentID)

	byPid, err := s.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, byPid)
	assert.Equal(t, "biz_pay_1", byPid.BusinessPaymentID)
}

func TestMemoryPaymentStore_RewritingProviderIDDropsStaleIndex(t *testing.T) {
	s := NewMemoryPaymentStore()
	ctx := context.Background()

	rec := &model.PaymentRecord{
		BusinessPaymentID: "biz_pay_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_old"),
	}
	require.NoError(t, s.Save(ctx, rec))

	rec.PaymentIntentID = strPtr("pi_new")
	require.NoError(t, s.Save(ctx, rec))

	stale, err := s.GetByProviderID(ctx, "pi_old")
	require.NoError(t, err)
	assert.Nil(t, stale, "I6: the old provider-id mapping must be removed")

	fresh, err := s.GetByProviderID(ctx, "pi_new")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, "biz_pay_1", fresh.BusinessPaymentID)
}

func TestMemoryPaymentStore_EmptyIDRejected(t *testing.T) {
	s := NewMemoryPaymentStore()
	ctx := context.Background()

	_, err := s.GetByBusinessID(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)

	err = s.Save(ctx, &model.PaymentRecord{BusinessPaymentID: ""})
	assert.ErrorIs(t, err, ErrEmptyID)

	err = s.Save(ctx, nil)
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestMemoryPaymentStore_UnknownIDsReturnNilNotError(t *testing.T) {
	s := NewMemoryPaymentStore()
	ctx := context.Background()

	rec, err := s.GetByBusinessID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
