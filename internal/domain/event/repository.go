package event

import "context"

// Handler delivers one event. A non-nil error leaves the event pending.
type Handler func(ctx context.Context, e *Event) error

// Batch summarizes one ProcessPending call.
type Batch struct {
	Claimed int
	Sent    int
	Failed  int
}

// Repository defines access to the outbox. Events are inserted by the
// ledger store inside the same unit of work as the balance change.
type Repository interface {
	// ProcessPending claims up to limit pending events in creation order and
	// hands them to fn one at a time. Delivered events are marked sent.
	// Processing stops at the first failure so later events never overtake an
	// earlier one; the failed event's attempt counter is incremented and it
	// becomes failed once maxAttempts is reached.
	ProcessPending(ctx context.Context, limit, maxAttempts int, fn Handler) (Batch, error)

	// CountByStatus reports how many events are in each status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
