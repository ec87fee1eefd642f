// Package lookup implements object lookup (C6): resolving a missing linked
// id (payment-intent-id, subscription-id) from a raw object id by querying
// the provider, per spec.md §4.6. This is the thin-event fallback path.
package lookup

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Lookup is C6's seam.
type Lookup interface {
	GetPaymentIntentID(ctx context.Context, objectID string) (string, bool, error)
	GetSubscriptionID(ctx context.Context, objectID string) (string, bool, error)
}

// StripeLookup resolves ids via the provider's read-only APIs. This is the
// only outbound call this system makes to the provider besides the
// reconciler's event listing (spec.md §1, Non-goals).
type StripeLookup struct {
	client *client.API
}

func NewStripeLookup(c *client.API) *StripeLookup {
	return &StripeLookup{client: c}
}

func (l *StripeLookup) GetPaymentIntentID(ctx context.Context, objectID string) (string, bool, error) {
	switch {
	case strings.HasPrefix(objectID, "pi_"):
		return objectID, true, nil
	case strings.HasPrefix(objectID, "in_"):
		inv, err := l.client.Invoices.Get(objectID, nil)
		if err != nil {
			return "", false, err
		}
		if inv.PaymentIntent == nil || inv.PaymentIntent.ID == "" {
			return "", false, nil
		}
		return inv.PaymentIntent.ID, true, nil
	case strings.HasPrefix(objectID, "evt_"):
		evt, err := l.client.Events.Get(objectID, nil)
		if err != nil {
			return "", false, err
		}
		return extractObjectField(evt, "payment_intent")
	}
	return "", false, nil
}

func (l *StripeLookup) GetSubscriptionID(ctx context.Context, objectID string) (string, bool, error) {
	switch {
	case strings.HasPrefix(objectID, "sub_"):
		return objectID, true, nil
	case strings.HasPrefix(objectID, "in_"):
		inv, err := l.client.Invoices.Get(objectID, nil)
		if err != nil {
			return "", false, err
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return "", false, nil
		}
		return inv.Subscription.ID, true, nil
	case strings.HasPrefix(objectID, "evt_"):
		evt, err := l.client.Events.Get(objectID, nil)
		if err != nil {
			return "", false, err
		}
		return extractObjectField(evt, "subscription")
	}
	return "", false, nil
}

// extractObjectField reads a linked id off an event's embedded data.object,
// which may be a bare string id or an expanded nested object.
func extractObjectField(evt *stripe.Event, field string) (string, bool, error) {
	if evt.Data == nil || evt.Data.Object == nil {
		return "", false, nil
	}
	v, ok := evt.Data.Object[field]
	if !ok {
		return "", false, nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false, nil
		}
		return t, true, nil
	case map[string]interface{}:
		id, _ := t["id"].(string)
		if id == "" {
			return "", false, nil
		}
		return id, true, nil
	}
	return "", false, nil
}
