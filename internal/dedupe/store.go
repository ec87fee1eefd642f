// Package dedupe implements the event dedupe store (C4): a per-event-id
// state machine with a time-bounded processing lease, per spec.md §4.4.
package dedupe

import (
	"context"
	"time"
)

// State is one of the three dedupe entry states.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// DefaultLease is the processing lease duration used when none is configured.
const DefaultLease = 5 * time.Minute

// Outcome is the terminal result of processing an event.
type Outcome struct {
	Succeeded    bool
	ErrorMessage string
	RecordedAt   time.Time
}

// Store is the seam C4 exposes to the pipeline. Implementations must make
// TryBegin, RecordOutcome, and GetOutcome serializable against each other
// per event id (§5 "Ordering guarantees").
type Store interface {
	// TryBegin is an atomic test-and-set: it returns true and (re)opens a
	// Processing lease iff the entry is absent, Failed, or Processing with
	// an expired lease. It returns false without mutating state otherwise.
	TryBegin(ctx context.Context, eventID string) (bool, error)

	// RecordOutcome unconditionally writes a terminal state, preserving the
	// entry's StartedAt.
	RecordOutcome(ctx context.Context, eventID string, outcome Outcome) error

	// GetOutcome returns the last recorded outcome, or (nil, false, nil) if
	// the entry is absent or still Processing.
	GetOutcome(ctx context.Context, eventID string) (*Outcome, bool, error)
}
