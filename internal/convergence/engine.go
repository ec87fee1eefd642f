// Package convergence implements the convergence engine (C7): applying
// parsed events to payment, subscription, and refund records under monotonic
// precedence and timestamp guards, per spec.md §4.7.
package convergence

import (
	"context"
	"errors"
	"fmt"

	"github.com/backmoon7/webhookengine/internal/eventparse"
	"github.com/backmoon7/webhookengine/internal/lookup"
	"github.com/backmoon7/webhookengine/internal/model"
	"github.com/backmoon7/webhookengine/internal/store"
)

// Outcome is the engine's result, persisted verbatim into C4 by the caller.
type Outcome struct {
	Succeeded    bool
	ErrorMessage string
}

var (
	ErrMissingLinkedID = errors.New("convergence: missing linked id")
	ErrRecordNotFound  = errors.New("convergence: record not found")
)

type targetKind string

const (
	targetPayment      targetKind = "payment"
	targetSubscription targetKind = "subscription"
	targetRefund       targetKind = "refund"
)

// Module names for the kill-switch checked before dispatch (SPEC_FULL §
// "Module-disable flags").
const (
	ModulePayments = "payments"
	ModuleBilling  = "billing"
	ModuleRefunds  = "refunds"
)

// DomainEvent is staged onto the outbox after a successful apply, per
// SPEC_FULL's outbox-pattern side-effect publication.
type DomainEvent struct {
	Type           string
	BusinessID     string
	PreviousStatus string
	NewStatus      string
	EventID        string
}

// Engine is C7. Publish is optional; when set, it's invoked once per
// successful apply that changes the record's status (not for rejections,
// no-ops, or applies that keep the same status).
type Engine struct {
	Payments        store.PaymentStore
	Subscriptions   store.SubscriptionStore
	Refunds         store.RefundStore
	Lookup          lookup.Lookup
	DisabledModules map[string]bool
	Publish         func(context.Context, DomainEvent)
}

// dispatchRule is one row of the §4.7 type-dispatch table.
type dispatchRule struct {
	target targetKind
	module string
	// successor is the fixed successor status, or "" if it must be derived
	// from ObjectStatus via mapFn.
	successor string
	mapFn     func(objectStatus string) string
}

var dispatchTable = map[string]dispatchRule{
	"payment_intent.succeeded":      {target: targetPayment, module: ModulePayments, successor: model.PaymentStatusSucceeded},
	"payment_intent.payment_failed": {target: targetPayment, module: ModulePayments, successor: model.PaymentStatusFailed},
	"invoice.payment_succeeded":     {target: targetSubscription, module: ModuleBilling, successor: model.SubscriptionStatusActive},
	"invoice.payment_failed":        {target: targetSubscription, module: ModuleBilling, successor: model.SubscriptionStatusPastDue},
	"customer.subscription.deleted": {target: targetSubscription, module: ModuleBilling, successor: model.SubscriptionStatusCanceled},
	"customer.subscription.created": {target: targetSubscription, module: ModuleBilling, mapFn: mapSubscriptionStatus},
	"customer.subscription.updated": {target: targetSubscription, module: ModuleBilling, mapFn: mapSubscriptionStatus},
	"refund.created":                {target: targetRefund, module: ModuleRefunds, mapFn: mapRefundStatus},
	"refund.updated":                {target: targetRefund, module: ModuleRefunds, mapFn: mapRefundStatus},
	"refund.failed":                 {target: targetRefund, module: ModuleRefunds, successor: model.RefundStatusFailed},
}

// mapSubscriptionStatus implements §4.7a.
func mapSubscriptionStatus(objectStatus string) string {
	switch objectStatus {
	case "active", "trialing":
		return model.SubscriptionStatusActive
	case "past_due":
		return model.SubscriptionStatusPastDue
	case "incomplete":
		return model.SubscriptionStatusIncomplete
	case "canceled":
		return model.SubscriptionStatusCanceled
	}
	return ""
}

// mapRefundStatus implements §4.7b.
func mapRefundStatus(objectStatus string) string {
	switch objectStatus {
	case "succeeded":
		return model.RefundStatusSucceeded
	case "failed":
		return model.RefundStatusFailed
	case "pending":
		return model.RefundStatusPending
	}
	return ""
}

// Process runs the full §4.7 pipeline for one parsed event.
func (e *Engine) Process(ctx context.Context, pe *eventparse.ParsedEvent) Outcome {
	rule, matched := dispatchTable[pe.Type]
	if !matched {
		return Outcome{Succeeded: true} // unrecognized type: ignored
	}

	if e.DisabledModules[rule.module] {
		return Outcome{Succeeded: true} // ModuleDisabled: silent no-op success
	}

	successor := rule.successor
	if successor == "" && rule.mapFn != nil {
		successor = rule.mapFn(pe.ObjectStatus)
	}
	if successor == "" {
		return Outcome{Succeeded: true} // §4.7a/§4.7b "otherwise": silent no-op
	}

	switch rule.target {
	case targetPayment:
		return e.processPayment(ctx, pe, successor)
	case targetSubscription:
		return e.processSubscription(ctx, pe, successor)
	case targetRefund:
		return e.processRefund(ctx, pe, successor)
	default:
		return Outcome{Succeeded: true}
	}
}

func failureOutcome(err error) Outcome {
	return Outcome{Succeeded: false, ErrorMessage: err.Error()}
}

func (e *Engine) processPayment(ctx context.Context, pe *eventparse.ParsedEvent, successor string) Outcome {
	pid := pe.PaymentIntentID
	if pid == "" && pe.ObjectID != "" && e.Lookup != nil {
		resolved, ok, err := e.Lookup.GetPaymentIntentID(ctx, pe.ObjectID)
		if err != nil {
			return failureOutcome(fmt.Errorf("resolve payment intent id: %w", err))
		}
		if ok {
			pid = resolved
		}
	}
	if pid == "" {
		return failureOutcome(fmt.Errorf("%w: payment_intent_id for event %s", ErrMissingLinkedID, pe.ID))
	}

	rec, err := e.Payments.GetByProviderID(ctx, pid)
	if err != nil {
		return failureOutcome(fmt.Errorf("lookup payment record: %w", err))
	}
	if rec == nil && pe.BusinessPaymentID != "" {
		rec, err = e.Payments.GetByBusinessID(ctx, pe.BusinessPaymentID)
		if err != nil {
			return failureOutcome(fmt.Errorf("lookup payment record by business id: %w", err))
		}
	}
	if rec == nil {
		return failureOutcome(fmt.Errorf("%w: payment intent %s", ErrRecordNotFound, pid))
	}

	if !paymentAdmits(rec, successor, pe.CreatedAt) {
		return Outcome{Succeeded: true} // rejected transition: no-op success
	}

	previous := rec.Status
	rec.Status = successor
	if pe.CreatedAt != nil {
		rec.LastEventCreated = maxInt64Ptr(rec.LastEventCreated, pe.CreatedAt)
	}
	if pid != "" {
		rec.PaymentIntentID = &pid
	}

	if err := e.Payments.Save(ctx, rec); err != nil {
		return failureOutcome(fmt.Errorf("save payment record: %w", err))
	}

	e.publish(ctx, "payment."+successor, rec.BusinessPaymentID, previous, successor, pe.ID)
	return Outcome{Succeeded: true}
}

// paymentAdmits implements the Payments admission predicate of §4.7 step 4.
func paymentAdmits(rec *model.PaymentRecord, incomingStatus string, incomingCreated *int64) bool {
	if rec.Status == model.PaymentStatusSucceeded && incomingStatus != model.PaymentStatusSucceeded {
		return false // I3
	}
	if rec.Status == model.PaymentStatusCanceled && incomingStatus != model.PaymentStatusCanceled {
		return false
	}
	if rec.LastEventCreated != nil && incomingCreated != nil {
		if *incomingCreated < *rec.LastEventCreated {
			return false
		}
		if *incomingCreated == *rec.LastEventCreated {
			return model.PaymentPrecedence[incomingStatus] >= model.PaymentPrecedence[rec.Status]
		}
	}
	return true
}

func (e *Engine) processSubscription(ctx context.Context, pe *eventparse.ParsedEvent, successor string) Outcome {
	sid := pe.SubscriptionID
	if sid == "" && pe.ObjectID != "" && e.Lookup != nil {
		resolved, ok, err := e.Lookup.GetSubscriptionID(ctx, pe.ObjectID)
		if err != nil {
			return failureOutcome(fmt.Errorf("resolve subscription id: %w", err))
		}
		if ok {
			sid = resolved
		}
	}
	if sid == "" {
		return failureOutcome(fmt.Errorf("%w: subscription_id for event %s", ErrMissingLinkedID, pe.ID))
	}

	rec, err := e.Subscriptions.GetByProviderID(ctx, sid)
	if err != nil {
		return failureOutcome(fmt.Errorf("lookup subscription record: %w", err))
	}
	if rec == nil && pe.BusinessSubscriptionID != "" {
		rec, err = e.Subscriptions.GetByBusinessID(ctx, pe.BusinessSubscriptionID)
		if err != nil {
			return failureOutcome(fmt.Errorf("lookup subscription record by business id: %w", err))
		}
	}
	if rec == nil {
		return failureOutcome(fmt.Errorf("%w: subscription %s", ErrRecordNotFound, sid))
	}

	if !subscriptionAdmits(rec, successor, pe.CreatedAt) {
		return Outcome{Succeeded: true}
	}

	previous := rec.Status
	rec.Status = successor
	if pe.CreatedAt != nil {
		rec.LastEventCreated = maxInt64Ptr(rec.LastEventCreated, pe.CreatedAt)
	}
	if sid != "" {
		rec.SubscriptionID = &sid
	}
	if pe.CustomerID != "" {
		rec.CustomerID = &pe.CustomerID
	}

	if err := e.Subscriptions.Save(ctx, rec); err != nil {
		return failureOutcome(fmt.Errorf("save subscription record: %w", err))
	}

	e.publish(ctx, "subscription."+successor, rec.BusinessSubscriptionID, previous, successor, pe.ID)
	return Outcome{Succeeded: true}
}

// subscriptionAdmits implements the Subscriptions admission predicate of
// §4.7 step 4.
func subscriptionAdmits(rec *model.SubscriptionRecord, incomingStatus string, incomingCreated *int64) bool {
	if rec.Status == model.SubscriptionStatusCanceled && incomingStatus != model.SubscriptionStatusCanceled {
		return false // I4
	}
	if rec.LastEventCreated != nil && incomingCreated != nil {
		if *incomingCreated < *rec.LastEventCreated {
			return false
		}
		if *incomingCreated == *rec.LastEventCreated {
			return model.SubscriptionPrecedence[incomingStatus] >= model.SubscriptionPrecedence[rec.Status]
		}
	}
	return true
}

func (e *Engine) processRefund(ctx context.Context, pe *eventparse.ParsedEvent, successor string) Outcome {
	rid := pe.RefundID
	if rid == "" {
		rid = pe.ObjectID
	}
	if rid == "" {
		return failureOutcome(fmt.Errorf("%w: refund_id for event %s", ErrMissingLinkedID, pe.ID))
	}

	rec, err := e.Refunds.GetByProviderID(ctx, rid)
	if err != nil {
		return failureOutcome(fmt.Errorf("lookup refund record: %w", err))
	}
	if rec == nil {
		return failureOutcome(fmt.Errorf("%w: refund %s", ErrRecordNotFound, rid))
	}

	// Refunds have no precedence ladder (spec.md §4.7 step 4): unconditional
	// apply after id resolution.
	previous := rec.Status
	rec.Status = successor
	rec.RefundID = &rid
	if pe.PaymentIntentID != "" {
		rec.PaymentIntentID = &pe.PaymentIntentID
	}

	if err := e.Refunds.Save(ctx, rec); err != nil {
		return failureOutcome(fmt.Errorf("save refund record: %w", err))
	}

	e.publish(ctx, "refund."+successor, rec.BusinessRefundID, previous, successor, pe.ID)
	return Outcome{Succeeded: true}
}

func (e *Engine) publish(ctx context.Context, typ, businessID, previous, newStatus, eventID string) {
	if e.Publish == nil || previous == newStatus {
		return
	}
	e.Publish(ctx, DomainEvent{
		Type:           typ,
		BusinessID:     businessID,
		PreviousStatus: previous,
		NewStatus:      newStatus,
		EventID:        eventID,
	})
}

func maxInt64Ptr(current, incoming *int64) *int64 {
	if current == nil {
		v := *incoming
		return &v
	}
	if *incoming > *current {
		v := *incoming
		return &v
	}
	v := *current
	return &v
}
