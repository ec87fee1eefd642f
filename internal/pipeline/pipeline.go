// Package pipeline wires C2 (signature), C4 (dedupe), C3 (parse), and C7
// (convergence) into the single ingest path described by spec.md §4.7's
// "Full pipeline around C7", plus the reconciler's bypass-C2 variant used by
// C8.
package pipeline

import (
	"context"
	"fmt"

	"github.com/backmoon7/webhookengine/internal/convergence"
	"github.com/backmoon7/webhookengine/internal/dedupe"
	"github.com/backmoon7/webhookengine/internal/eventparse"
	"github.com/backmoon7/webhookengine/internal/signature"

	"github.com/stripe/stripe-go/v76"
)

// Status classifies the pipeline's result for the HTTP layer (spec.md §6).
type Status string

const (
	StatusOK                Status = "ok"
	StatusDuplicate         Status = "duplicate"
	StatusNonTerminalDup    Status = "non_terminal_duplicate"
	StatusSignatureRejected Status = "signature_rejected"
	StatusAppliedButFailed  Status = "applied_but_failed"
)

// Result is what the handler layer translates into an HTTP response.
type Result struct {
	Status       Status
	EventID      string
	ErrorMessage string
}

// Pipeline bundles the four collaborators an ingest or reconcile call needs.
type Pipeline struct {
	Verifier *signature.Verifier
	Dedupe   dedupe.Store
	Engine   *convergence.Engine
}

// Ingest runs C2 → C4.try_begin → C3 → C7 → C4.record_outcome for one
// inbound webhook delivery.
func (p *Pipeline) Ingest(ctx context.Context, rawBody []byte, signatureHeader, secret string) Result {
	header, err := p.Verifier.Verify(rawBody, signatureHeader, secret)
	if err != nil {
		return Result{Status: StatusSignatureRejected, ErrorMessage: err.Error()}
	}

	started, err := p.Dedupe.TryBegin(ctx, header.ID)
	if err != nil {
		return Result{Status: StatusNonTerminalDup, EventID: header.ID, ErrorMessage: err.Error()}
	}
	if !started {
		return p.classifyDuplicate(ctx, header.ID)
	}

	parsed, err := eventparse.FromRawBody(rawBody)
	if err != nil {
		// Malformed payload after a valid signature: still recorded as a
		// failed outcome so redelivery can retry it (spec.md §7).
		outcome := dedupe.Outcome{Succeeded: false, ErrorMessage: err.Error()}
		_ = p.Dedupe.RecordOutcome(ctx, header.ID, outcome)
		return Result{Status: StatusAppliedButFailed, EventID: header.ID, ErrorMessage: err.Error()}
	}

	return p.apply(ctx, header.ID, parsed)
}

// IngestSDKEvent runs C4.try_begin → C3(SDK variant) → C7 → C4.record_outcome
// for a single provider event object, bypassing C2 (source-authenticated via
// API). Used by C8.
func (p *Pipeline) IngestSDKEvent(ctx context.Context, evt *stripe.Event) Result {
	started, err := p.Dedupe.TryBegin(ctx, evt.ID)
	if err != nil {
		return Result{Status: StatusNonTerminalDup, EventID: evt.ID, ErrorMessage: err.Error()}
	}
	if !started {
		return p.classifyDuplicate(ctx, evt.ID)
	}

	parsed, err := eventparse.FromStripeEvent(evt)
	if err != nil {
		outcome := dedupe.Outcome{Succeeded: false, ErrorMessage: err.Error()}
		_ = p.Dedupe.RecordOutcome(ctx, evt.ID, outcome)
		return Result{Status: StatusAppliedButFailed, EventID: evt.ID, ErrorMessage: err.Error()}
	}

	return p.apply(ctx, evt.ID, parsed)
}

func (p *Pipeline) apply(ctx context.Context, eventID string, parsed *eventparse.ParsedEvent) Result {
	out := p.Engine.Process(ctx, parsed)

	recordErr := p.Dedupe.RecordOutcome(ctx, eventID, dedupe.Outcome{
		Succeeded:    out.Succeeded,
		ErrorMessage: out.ErrorMessage,
	})
	if recordErr != nil {
		return Result{Status: StatusAppliedButFailed, EventID: eventID, ErrorMessage: fmt.Errorf("record outcome: %w", recordErr).Error()}
	}

	if !out.Succeeded {
		return Result{Status: StatusAppliedButFailed, EventID: eventID, ErrorMessage: out.ErrorMessage}
	}
	return Result{Status: StatusOK, EventID: eventID}
}

func (p *Pipeline) classifyDuplicate(ctx context.Context, eventID string) Result {
	existing, found, err := p.Dedupe.GetOutcome(ctx, eventID)
	if err != nil {
		return Result{Status: StatusNonTerminalDup, EventID: eventID, ErrorMessage: err.Error()}
	}
	if !found {
		// Another delivery holds the processing lease; retry later.
		return Result{Status: StatusNonTerminalDup, EventID: eventID}
	}
	if existing.Succeeded {
		return Result{Status: StatusDuplicate, EventID: eventID}
	}
	return Result{Status: StatusNonTerminalDup, EventID: eventID, ErrorMessage: existing.ErrorMessage}
}
