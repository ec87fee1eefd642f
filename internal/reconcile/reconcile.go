// Package reconcile implements the reconciler (C8): paging the provider's
// event-list API and replaying each event through the same
// try_begin→process→record_outcome pipeline used by live ingest, per
// spec.md §4.8.
package reconcile

import (
	"context"
	"time"

	"github.com/backmoon7/webhookengine/internal/pipeline"

	"github.com/stripe/stripe-go/v76"
)

// DefaultLimit and DefaultWindow mirror spec.md §4.8's stated defaults.
const (
	DefaultLimit  = 100
	DefaultWindow = 30 * 24 * time.Hour
)

// SupportedEventTypes are the event types the convergence engine
// understands, per the dispatch table of spec.md §4.7.
var SupportedEventTypes = []string{
	"payment_intent.succeeded",
	"payment_intent.payment_failed",
	"invoice.payment_succeeded",
	"invoice.payment_failed",
	"customer.subscription.deleted",
	"customer.subscription.created",
	"customer.subscription.updated",
	"refund.created",
	"refund.updated",
	"refund.failed",
}

// Options are the `/reconcile` request parameters.
type Options struct {
	Limit                int
	CreatedAfter         time.Time
	StartingAfterEventID string
}

// Result is the ReconciliationResult shape of spec.md §6.
type Result struct {
	Total       int
	Processed   int
	Duplicates  int
	Failed      int
	LastEventID string
	HasMore     bool
}

// Page is one page of the provider's event list.
type Page struct {
	Events  []*stripe.Event
	HasMore bool
}

// EventPager is C8's seam onto the provider's event-list API; StripeEventPager
// is the production adapter over *client.API's Events service.
type EventPager interface {
	ListPage(ctx context.Context, opts Options) (Page, error)
}

// Reconciler is C8.
type Reconciler struct {
	Pager    EventPager
	Pipeline *pipeline.Pipeline
}

func New(pager EventPager, p *pipeline.Pipeline) *Reconciler {
	return &Reconciler{Pager: pager, Pipeline: p}
}

// Run pages events per opts and feeds each through the pipeline, honoring
// cooperative cancellation between events.
func (r *Reconciler) Run(ctx context.Context, opts Options) Result {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = DefaultLimit
	}
	if opts.CreatedAfter.IsZero() {
		opts.CreatedAfter = time.Now().Add(-DefaultWindow)
	}

	var result Result

	page, err := r.Pager.ListPage(ctx, opts)
	if err != nil {
		result.HasMore = true
		return result
	}

	for _, evt := range page.Events {
		select {
		case <-ctx.Done():
			result.HasMore = true
			return result
		default:
		}

		result.Total++
		result.LastEventID = evt.ID

		res := r.Pipeline.IngestSDKEvent(ctx, evt)
		switch res.Status {
		case pipeline.StatusOK:
			result.Processed++
		case pipeline.StatusDuplicate:
			result.Duplicates++
		default:
			result.Failed++
		}
	}

	result.HasMore = page.HasMore
	return result
}
