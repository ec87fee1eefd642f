package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/backmoon7/webhookengine/internal/convergence"
	"github.com/backmoon7/webhookengine/internal/dedupe"
	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/pipeline"
	"github.com/backmoon7/webhookengine/internal/signature"
	"github.com/backmoon7/webhookengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/stripe-go/v76"
)

type fakePager struct {
	page Page
	err  error
}

func (f *fakePager) ListPage(ctx context.Context, opts Options) (Page, error) {
	return f.page, f.err
}

func newTestPipeline(payments store.PaymentStore) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Verifier: signature.New(signature.DefaultTolerance),
		Dedupe:   dedupe.NewMemoryStore(dedupe.DefaultLease),
		Engine:   &convergence.Engine{Payments: payments},
	}
}

func strPtr(s string) *string { return &s }

func stripeEvent(id, typ, objectID string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{
			Object: map[string]interface{}{
				"object": "payment_intent",
				"id":     objectID,
				"status": "succeeded",
			},
		},
	}
}

func TestReconciler_Run_ProcessesEachEvent(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	pager := &fakePager{page: Page{
		Events: []*stripe.Event{
			stripeEvent("evt_1", "payment_intent.succeeded", "pi_1"),
		},
		HasMore: false,
	}}
	r := New(pager, newTestPipeline(payments))

	res := r.Run(ctx, Options{})
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "evt_1", res.LastEventID)
	assert.False(t, res.HasMore)
}

func TestReconciler_Run_DuplicateAgainstLiveIngest(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	ctx := context.Background()
	require.NoError(t, payments.Save(ctx, &model.PaymentRecord{
		BusinessPaymentID: "biz_1",
		Status:            model.PaymentStatusPending,
		PaymentIntentID:   strPtr("pi_1"),
	}))

	p := newTestPipeline(payments)
	evt := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")

	first := p.IngestSDKEvent(ctx, evt)
	require.Equal(t, pipeline.StatusOK, first.Status)

	pager := &fakePager{page: Page{Events: []*stripe.Event{evt}}}
	r := New(pager, p)
	res := r.Run(ctx, Options{})
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Processed)
}

func TestReconciler_Run_FailedEventCounted(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	pager := &fakePager{page: Page{
		Events: []*stripe.Event{stripeEvent("evt_missing", "payment_intent.succeeded", "pi_unknown")},
	}}
	r := New(pager, newTestPipeline(payments))

	res := r.Run(context.Background(), Options{})
	assert.Equal(t, 1, res.Failed)
}

func TestReconciler_Run_ListErrorSetsHasMore(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	pager := &fakePager{err: errors.New("provider unavailable")}
	r := New(pager, newTestPipeline(payments))

	res := r.Run(context.Background(), Options{})
	assert.True(t, res.HasMore)
	assert.Equal(t, 0, res.Total)
}

func TestReconciler_Run_CancellationStopsEarly(t *testing.T) {
	payments := store.NewMemoryPaymentStore()
	pager := &fakePager{page: Page{
		Events: []*stripe.Event{
			stripeEvent("evt_1", "payment_intent.succeeded", "pi_1"),
			stripeEvent("evt_2", "payment_intent.succeeded", "pi_2"),
		},
	}}
	r := New(pager, newTestPipeline(payments))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Run(ctx, Options{})
	assert.Equal(t, 0, res.Total)
	assert.True(t, res.HasMore)
}
