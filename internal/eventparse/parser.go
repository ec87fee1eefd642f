// Package eventparse implements the event parser/adapter (C3): producing a
// normalized ParsedEvent from either a raw webhook body or a provider-SDK
// event object, per spec.md §4.3.
package eventparse

import (
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v76"
)

// ObjectKind is the normalized shape of the event's data.object.
type ObjectKind string

const (
	ObjectKindPaymentIntent   ObjectKind = "payment_intent"
	ObjectKindInvoice         ObjectKind = "invoice"
	ObjectKindSubscription    ObjectKind = "subscription"
	ObjectKindRefund          ObjectKind = "refund"
	ObjectKindCheckoutSession ObjectKind = "checkout_session"
	ObjectKindUnknown         ObjectKind = "unknown"
)

// ParsedEvent is C3's output schema, shared by both entry points.
type ParsedEvent struct {
	ID         string
	Type       string
	CreatedAt  *int64
	ObjectID   string
	ObjectKind ObjectKind
	// ObjectStatus is the embedded object's "status" field, when present.
	ObjectStatus string

	PaymentIntentID string
	SubscriptionID  string
	RefundID        string
	CustomerID      string

	BusinessPaymentID      string
	BusinessSubscriptionID string
}

var ErrMalformedPayload = errors.New("eventparse: payload missing required fields")

type envelope struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created *int64        `json:"created"`
	Data    *envelopeData `json:"data"`
}

type envelopeData struct {
	Object map[string]interface{} `json:"object"`
}

// FromRawBody parses a raw webhook body into a ParsedEvent.
func FromRawBody(rawBody []byte) (*ParsedEvent, error) {
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, ErrMalformedPayload
	}
	if env.ID == "" || env.Type == "" {
		return nil, ErrMalformedPayload
	}

	var object map[string]interface{}
	if env.Data != nil {
		object = env.Data.Object
	}

	return build(env.ID, env.Type, env.Created, object), nil
}

// FromStripeEvent parses a provider-SDK typed event into a ParsedEvent.
func FromStripeEvent(evt *stripe.Event) (*ParsedEvent, error) {
	if evt == nil || evt.ID == "" || evt.Type == "" {
		return nil, ErrMalformedPayload
	}

	var object map[string]interface{}
	if evt.Data != nil {
		object = evt.Data.Object
		if object == nil && len(evt.Data.Raw) > 0 {
			_ = json.Unmarshal(evt.Data.Raw, &object)
		}
	}

	var created *int64
	if evt.Created != 0 {
		c := evt.Created
		created = &c
	}

	return build(evt.ID, string(evt.Type), created, object), nil
}

// build is the shared field-mapping logic for both entry points.
func build(id, eventType string, created *int64, object map[string]interface{}) *ParsedEvent {
	pe := &ParsedEvent{
		ID:        id,
		Type:      eventType,
		CreatedAt: created,
	}

	if object == nil {
		pe.ObjectKind = ObjectKindUnknown
		return pe
	}

	pe.ObjectID = stringField(object, "id")
	pe.ObjectStatus = stringField(object, "status")
	pe.ObjectKind = classify(object)

	metadata, _ := object["metadata"].(map[string]interface{})
	pe.BusinessPaymentID = stringField(metadata, "business_payment_id")
	pe.BusinessSubscriptionID = stringField(metadata, "business_subscription_id")

	pe.CustomerID = refID(object["customer"])

	switch pe.ObjectKind {
	case ObjectKindPaymentIntent:
		pe.PaymentIntentID = pe.ObjectID
	case ObjectKindInvoice:
		pe.PaymentIntentID = refID(object["payment_intent"])
		pe.SubscriptionID = refID(object["subscription"])
	case ObjectKindSubscription:
		pe.SubscriptionID = pe.ObjectID
	case ObjectKindRefund:
		pe.RefundID = firstNonEmpty(refID(object["refund"]), pe.ObjectID)
		pe.PaymentIntentID = refID(object["payment_intent"])
	case ObjectKindCheckoutSession:
		pe.PaymentIntentID = refID(object["payment_intent"])
		pe.SubscriptionID = refID(object["subscription"])
		pe.CustomerID = firstNonEmpty(pe.CustomerID, refID(object["customer"]))

		mode := stringField(object, "mode")
		switch mode {
		case "payment":
			clientRef := stringField(object, "client_reference_id")
			pe.BusinessPaymentID = firstNonEmpty(clientRef, pe.BusinessPaymentID)
		case "subscription":
			clientRef := stringField(object, "client_reference_id")
			pe.BusinessSubscriptionID = firstNonEmpty(clientRef, pe.BusinessSubscriptionID)
		}
	}

	return pe
}

// classify derives ObjectKind from the object's "object" discriminator field,
// falling back to id-prefix sniffing if absent.
func classify(object map[string]interface{}) ObjectKind {
	switch stringField(object, "object") {
	case "payment_intent":
		return ObjectKindPaymentIntent
	case "invoice":
		return ObjectKindInvoice
	case "subscription":
		return ObjectKindSubscription
	case "refund":
		return ObjectKindRefund
	case "checkout.session":
		return ObjectKindCheckoutSession
	}

	id := stringField(object, "id")
	switch {
	case hasPrefix(id, "pi_"):
		return ObjectKindPaymentIntent
	case hasPrefix(id, "in_"):
		return ObjectKindInvoice
	case hasPrefix(id, "sub_"):
		return ObjectKindSubscription
	case hasPrefix(id, "re_"):
		return ObjectKindRefund
	case hasPrefix(id, "cs_"):
		return ObjectKindCheckoutSession
	}
	return ObjectKindUnknown
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// refID extracts an id from a field that may be a bare string id or an
// expanded nested object (the provider's "expand" feature yields the latter).
func refID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		return stringField(t, "id")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
