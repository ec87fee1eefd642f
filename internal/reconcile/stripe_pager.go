package reconcile

import (
	"context"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeEventPager is the production EventPager, backed by the provider's
// SDK list iterator. One ListPage call drains one page fully.
type StripeEventPager struct {
	Client *client.API
}

func NewStripeEventPager(c *client.API) *StripeEventPager {
	return &StripeEventPager{Client: c}
}

func (p *StripeEventPager) ListPage(ctx context.Context, opts Options) (Page, error) {
	params := &stripe.EventListParams{
		Types: stripe.StringSlice(SupportedEventTypes),
	}
	params.Filters.AddFilter("created", "gte", strconv.FormatInt(opts.CreatedAfter.Unix(), 10))
	params.Limit = stripe.Int64(int64(opts.Limit))
	if opts.StartingAfterEventID != "" {
		params.StartingAfter = stripe.String(opts.StartingAfterEventID)
	}
	params.Context = ctx

	iter := p.Client.Events.List(params)
	var page Page
	for iter.Next() {
		page.Events = append(page.Events, iter.Event())
		if len(page.Events) >= opts.Limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return page, err
	}
	page.HasMore = iter.EventList().ListMeta.HasMore
	return page, nil
}
