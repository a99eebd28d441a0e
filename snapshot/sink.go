package snapshot

import "context"

// Sink persists snapshots outside the process. Save must be safe to
// call concurrently with other sinks' Save on the same snapshot; the
// snapshot is immutable once created.
type Sink interface {
	Name() string
	Save(ctx context.Context, snap *Snapshot) error

	// Load fetches a persisted snapshot by id, for recovery after the
	// in-memory ring has been lost.
	Load(ctx context.Context, id string) (*Snapshot, error)
}
