package convergence

import (
	"context"
	"testing"

	"github.com/backmoon7/webhookengine/internal/eventparse"
	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	paymentIntent map[string]string
	subscription  map[string]string
}

func (f *fakeLookup) GetPaymentIntentID(ctx context.Context, objectID string) (string, bool, error) {
	v, ok := f.paymentIntent[objectID]
	return v, ok, nil
}

func (f *fakeLookup) GetSubscriptionID(ctx context.Context, objectID string) (string, bool, error) {
	v, ok := f.subscription[objectID]
	return v, ok, nil
}

func int64p(v int64) *int64 { return &v }

func TestEngine_Process_PaymentSucceeded(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	eng := &Engine{Payments: payments}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_1",
		Type:            "payment_intent.succeeded",
		CreatedAt:       int64p(100),
		PaymentIntentID: "pi_1",
	})
	assert.True(t, out.Succeeded)

	rec, err := payments.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, rec.Status)
	assert.Equal(t, int64(100), *rec.LastEventCreated)
}

func TestEngine_Process_SucceededIsTerminalAgainstFailed(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusSucceeded,
		PaymentIntentID:   strPtr("pi_1"),
		LastEventCreated:  int64p(100),
	}))

	eng := &Engine{Payments: payments}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_2",
		Type:            "payment_intent.payment_failed",
		CreatedAt:       int64p(200),
		PaymentIntentID: "pi_1",
	})
	assert.True(t, out.Succeeded, "rejected transitions are no-op successes, not failures")

	rec, err := payments.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, rec.Status, "terminal status must not regress")
}

func TestEngine_Process_OutOfOrderTimestampRejected(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusFailed,
		PaymentIntentID:   strPtr("pi_1"),
		LastEventCreated:  int64p(500),
	}))

	eng := &Engine{Payments: payments}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_3",
		Type:            "payment_intent.succeeded",
		CreatedAt:       int64p(100),
		PaymentIntentID: "pi_1",
	})
	assert.True(t, out.Succeeded)

	rec, err := payments.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, rec.Status, "an older event must not overwrite a newer one")
}

func TestEngine_Process_MissingLinkedIDIsFailure(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()

	eng := &Engine{Payments: payments, Lookup: &fakeLookup{}}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:       "evt_4",
		Type:     "payment_intent.succeeded",
		ObjectID: "unresolvable",
	})
	assert.False(t, out.Succeeded)
	assert.NotEmpty(t, out.ErrorMessage)
}

func TestEngine_Process_ThinEventResolvesViaLookup(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	eng := &Engine{
		Payments: payments,
		Lookup:   &fakeLookup{paymentIntent: map[string]string{"evt_thin": "pi_1"}},
	}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:       "evt_5",
		Type:     "payment_intent.succeeded",
		ObjectID: "evt_thin",
	})
	assert.True(t, out.Succeeded)

	rec, err := payments.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, rec.Status)
}

func TestEngine_Process_NullIDCorrelatesViaBusinessPaymentID(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   nil,
	}))

	eng := &Engine{Payments: payments}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:                "evt_s6",
		Type:              "payment_intent.succeeded",
		CreatedAt:         int64p(100),
		PaymentIntentID:   "pi_fresh",
		BusinessPaymentID: "biz_1",
	})
	assert.True(t, out.Succeeded)

	rec, err := payments.GetByBusinessID(ctx, "biz_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, rec.Status)
	require.NotNil(t, rec.PaymentIntentID)
	assert.Equal(t, "pi_fresh", *rec.PaymentIntentID, "the record must be re-indexed under the fresh provider id")

	byPid, err := payments.GetByProviderID(ctx, "pi_fresh")
	require.NoError(t, err)
	require.NotNil(t, byPid)
	assert.Equal(t, "biz_1", byPid.BusinessPaymentID)
}

func TestEngine_Process_NullIDCorrelatesViaBusinessSubscriptionID(t *testing.T) {
	subs := store.NewMemorySubscriptionStore()
	ctx := context.Background()
	require.NoError(t, subs.Save(ctx, &model.SubscriptionRecord{
		BusinessSubscriptionID: "biz_sub_1",
		Status:                 model.SubscriptionStatusIncomplete,
		SubscriptionID:         nil,
	}))

	eng := &Engine{Subscriptions: subs}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:                     "evt_s6_sub",
		Type:                   "customer.subscription.updated",
		CreatedAt:              int64p(100),
		SubscriptionID:         "sub_fresh",
		BusinessSubscriptionID: "biz_sub_1",
		ObjectStatus:           "active",
	})
	assert.True(t, out.Succeeded)

	rec, err := subs.GetByBusinessID(ctx, "biz_sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, rec.Status)
	require.NotNil(t, rec.SubscriptionID)
	assert.Equal(t, "sub_fresh", *rec.SubscriptionID, "the record must be re-indexed under the fresh provider id")
}

func TestEngine_Process_RecordNotFoundIsFailure(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()

	eng := &Engine{Payments: payments}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_6",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_unknown",
	})
	assert.False(t, out.Succeeded)
}

func TestEngine_Process_SubscriptionStatusMapping(t *testing.T) {
	subs := store.NewMemorySubscriptionStore()
	ctx := context.Background()
	require.NoError(t, subs.Save(ctx, &model.SubscriptionRecord{
		BusinessSubscriptionID: "biz_sub_1",
		Status:                 model.SubscriptionStatusIncomplete,
		SubscriptionID:         strPtr("sub_1"),
	}))

	eng := &Engine{Subscriptions: subs}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:             "evt_7",
		Type:           "customer.subscription.updated",
		CreatedAt:      int64p(10),
		SubscriptionID: "sub_1",
		ObjectStatus:   "trialing",
	})
	assert.True(t, out.Succeeded)

	rec, err := subs.GetByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, rec.Status)
}

func TestEngine_Process_SubscriptionUnrecognizedStatusIsNoOp(t *testing.T) {
	subs := store.NewMemorySubscriptionStore()
	ctx := context.Background()
	require.NoError(t, subs.Save(ctx, &model.SubscriptionRecord{
		BusinessSubscriptionID: "biz_sub_1",
		Status:                 model.SubscriptionStatusActive,
		SubscriptionID:         strPtr("sub_1"),
	}))

	eng := &Engine{Subscriptions: subs}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:             "evt_8",
		Type:           "customer.subscription.updated",
		SubscriptionID: "sub_1",
		ObjectStatus:   "unknown_status",
	})
	assert.True(t, out.Succeeded)

	rec, err := subs.GetByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, rec.Status, "unmapped status leaves the record untouched")
}

func TestEngine_Process_RefundAppliesUnconditionally(t *testing.T) {
	refunds := store.NewMemoryRefundStore()
	ctx := context.Background()
	require.NoError(t, refunds.Save(ctx, &model.RefundRecord{
		BusinessRefundID:  "biz_refund_1",
		BusinessPaymentID: "biz_1",
		Status:            model.RefundStatusPending,
		RefundID:          strPtr("re_1"),
	}))

	eng := &Engine{Refunds: refunds}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:           "evt_9",
		Type:         "refund.updated",
		RefundID:     "re_1",
		ObjectStatus: "succeeded",
	})
	assert.True(t, out.Succeeded)

	rec, err := refunds.GetByProviderID(ctx, "re_1")
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusSucceeded, rec.Status)
}

func TestEngine_Process_ModuleDisabledIsSilentNoOp(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	eng := &Engine{
		Payments:        payments,
		DisabledModules: map[string]bool{ModulePayments: true},
	}
	out := eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_10",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_1",
	})
	assert.True(t, out.Succeeded)

	rec, err := payments.GetByProviderID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, rec.Status, "disabled module must not mutate state")
}

func TestEngine_Process_UnrecognizedEventTypeIsIgnored(t *testing.T) {
	eng := &Engine{}
	out := eng.Process(context.Background(), &eventparse.ParsedEvent{
		ID:   "evt_11",
		Type: "some.unrelated.event",
	})
	assert.True(t, out.Succeeded)
}

func TestEngine_Process_PublishesOnlyOnStatusChange(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	var published []DomainEvent
	eng := &Engine{
		Payments: payments,
		Publish: func(ctx context.Context, evt DomainEvent) {
			published = append(published, evt)
		},
	}
	eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_12",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_1",
	})
	require.Len(t, published, 1)
	assert.Equal(t, "biz_1", published[0].BusinessID)
	assert.Equal(t, model.PaymentStatusPending, published[0].PreviousStatus)
	assert.Equal(t, model.PaymentStatusSucceeded, published[0].NewStatus)

	// A second succeeded event is applied but keeps the status: no publish.
	eng.Process(ctx, &eventparse.ParsedEvent{
		ID:              "evt_12b",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_1",
	})
	assert.Len(t, published, 1)
}

func strPtr(s string) *string { return &s }
