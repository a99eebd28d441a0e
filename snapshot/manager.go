package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcoord/agent"
	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
)

// defaultCapacity bounds the in-memory snapshot ring.
const defaultCapacity = 10

// Snapshot is a point-in-time copy of one conversation's state. The
// embedded context is a deep copy; mutating the live store after
// creation never changes an existing snapshot.
type Snapshot struct {
	ID        string                      `json:"id"`
	CreatedAt time.Time                   `json:"created_at"`
	Version   uint64                      `json:"version"`
	Context   *conversation.SharedContext `json:"context"`
}

// Manager owns the snapshot ring buffer and the restore path for one
// conversation.
type Manager struct {
	store     *conversation.Store
	dir       *agent.Directory
	sinks     []Sink
	collector *metrics.Collector
	logger    *zap.Logger

	capacity int
	ring     []*Snapshot
}

// Option customizes manager construction.
type Option func(*Manager)

// WithCapacity overrides the ring buffer size.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithSinks attaches durability sinks; every created snapshot is fanned
// out to all of them.
func WithSinks(sinks ...Sink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

// WithDirectory lets restore re-activate agents in the directory, not
// just in the conversation state.
func WithDirectory(dir *agent.Directory) Option {
	return func(m *Manager) { m.dir = dir }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// NewManager creates a snapshot manager over a conversation store.
func NewManager(store *conversation.Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:    store,
		capacity: defaultCapacity,
		logger:   logger.With(zap.String("component", "snapshot_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSnapshot deep-copies the current conversation state into a new
// snapshot, appends it to the ring buffer evicting the oldest entry,
// and fans it out to the configured sinks. Sink failures do not discard
// the in-memory snapshot; the aggregated error is returned alongside it.
func (m *Manager) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	state := m.store.State()
	snap := &Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Version:   state.Version,
		Context:   state,
	}

	m.ring = append(m.ring, snap)
	if len(m.ring) > m.capacity {
		m.ring = m.ring[len(m.ring)-m.capacity:]
	}

	if m.collector != nil {
		m.collector.RecordSnapshot("create")
	}
	m.logger.Info("snapshot created",
		zap.String("snapshot_id", snap.ID),
		zap.Uint64("version", snap.Version),
		zap.Int("retained", len(m.ring)),
	)

	return snap, m.persist(ctx, snap)
}

// Snapshots returns the retained snapshots, oldest first.
func (m *Manager) Snapshots() []*Snapshot {
	out := make([]*Snapshot, len(m.ring))
	copy(out, m.ring)
	return out
}

// Latest returns the most recent snapshot, or nil when none exist.
func (m *Manager) Latest() *Snapshot {
	if len(m.ring) == 0 {
		return nil
	}
	return m.ring[len(m.ring)-1]
}

// Get returns a retained snapshot by id.
func (m *Manager) Get(id string) (*Snapshot, error) {
	for _, s := range m.ring {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, types.NewErrorf(types.ErrSnapshotNotFound, "snapshot %s not retained", id)
}

// RestoreSnapshot atomically replaces the live conversation state with
// the snapshot's contents and re-activates every agent the snapshot
// lists as active. The snapshot itself stays immutable: the store gets
// a copy.
func (m *Manager) RestoreSnapshot(snap *Snapshot) error {
	if snap == nil || snap.Context == nil {
		return types.NewError(types.ErrStateCorrupted, "snapshot has no context")
	}

	m.store.Restore(snap.Context.Clone())

	if m.dir != nil {
		for _, agentID := range snap.Context.ActiveAgents {
			if !m.dir.SetActive(agentID, true) {
				m.logger.Warn("agent missing from directory on restore",
					zap.String("agent_id", agentID),
				)
			}
		}
	}

	if m.collector != nil {
		m.collector.RecordSnapshot("restore")
	}
	m.logger.Info("snapshot restored",
		zap.String("snapshot_id", snap.ID),
		zap.Uint64("version", snap.Version),
	)
	return nil
}

// RestoreByID restores a retained snapshot.
func (m *Manager) RestoreByID(id string) error {
	snap, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.RestoreSnapshot(snap)
}

// persist fans the snapshot out to every sink concurrently.
func (m *Manager) persist(ctx context.Context, snap *Snapshot) error {
	if len(m.sinks) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range m.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Save(ctx, snap); err != nil {
				m.logger.Warn("snapshot sink failed",
					zap.String("sink", sink.Name()),
					zap.String("snapshot_id", snap.ID),
					zap.Error(err),
				)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
