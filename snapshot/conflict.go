package snapshot

import (
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
)

// defaultConflictWindow is how close two divergent writes must be to
// count as a conflict rather than a deliberate overwrite.
const defaultConflictWindow = time.Minute

// Detector scans agent sync states for divergent writes. When a bus is
// attached, every detected conflict is published as a conflict:detected
// event so subscribers can observe detection as it happens.
type Detector struct {
	window    time.Duration
	bus       *conversation.Bus
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewDetector creates a conflict detector. A zero window uses the
// default; bus may be nil for detection without event delivery.
func NewDetector(window time.Duration, bus *conversation.Bus, collector *metrics.Collector, logger *zap.Logger) *Detector {
	if window <= 0 {
		window = defaultConflictWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		window:    window,
		bus:       bus,
		collector: collector,
		logger:    logger.With(zap.String("component", "conflict_detector")),
	}
}

// memoryWrite pairs an agent with its entry for one contested key.
type memoryWrite struct {
	agentID string
	entry   conversation.MemoryEntry
}

// Detect reports memory conflicts: two or more agents wrote different
// values to the same sync-memory key within the detection window.
// Detection is read-only; no conflict record is stored until a caller
// resolves it.
func (d *Detector) Detect(state *conversation.SharedContext) []conversation.StateConflict {
	byKey := make(map[string][]memoryWrite)
	for agentID, sync := range state.AgentStates {
		for key, entry := range sync.Memory {
			byKey[key] = append(byKey[key], memoryWrite{agentID: agentID, entry: entry})
		}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var conflicts []conversation.StateConflict
	for _, key := range keys {
		writes := byKey[key]
		if len(writes) < 2 {
			continue
		}
		sort.Slice(writes, func(i, j int) bool {
			return writes[i].agentID < writes[j].agentID
		})

		involved, data := divergentWrites(writes, d.window)
		if len(involved) < 2 {
			continue
		}

		conflict := conversation.StateConflict{
			ID:             uuid.New().String(),
			Type:           conversation.MemoryConflict,
			InvolvedAgents: involved,
			Severity:       severityFor(len(involved)),
			Key:            key,
			Data:           data,
			DetectedAt:     time.Now(),
		}
		conflicts = append(conflicts, conflict)

		if d.bus != nil {
			c := conflict
			d.bus.Publish(conversation.ConflictEvent{
				Event:    conversation.EventConflictDetected,
				Conflict: &c,
				At:       conflict.DetectedAt,
			})
		}
		if d.collector != nil {
			d.collector.RecordConflict(string(conflict.Type))
		}
		d.logger.Warn("memory conflict detected",
			zap.String("key", key),
			zap.Strings("agents", involved),
		)
	}
	return conflicts
}

// divergentWrites filters to agents whose values differ from at least
// one other agent's value for the same key, written within the window.
func divergentWrites(writes []memoryWrite, window time.Duration) ([]string, map[string]any) {
	newest := writes[0].entry.UpdatedAt
	for _, w := range writes[1:] {
		if w.entry.UpdatedAt.After(newest) {
			newest = w.entry.UpdatedAt
		}
	}

	var involved []string
	data := make(map[string]any)
	for _, w := range writes {
		if newest.Sub(w.entry.UpdatedAt) > window {
			continue
		}
		disagrees := false
		for _, other := range writes {
			if other.agentID == w.agentID {
				continue
			}
			if newest.Sub(other.entry.UpdatedAt) > window {
				continue
			}
			if !reflect.DeepEqual(w.entry.Value, other.entry.Value) {
				disagrees = true
				break
			}
		}
		if disagrees {
			involved = append(involved, w.agentID)
			data[w.agentID] = w.entry.Value
		}
	}
	return involved, data
}

func severityFor(involved int) conversation.ConflictSeverity {
	if involved > 2 {
		return conversation.SeverityHigh
	}
	return conversation.SeverityMedium
}

// Resolver applies resolution strategies and records the outcome in the
// conversation's append-only audit list.
type Resolver struct {
	store  *conversation.Store
	logger *zap.Logger
}

// NewResolver creates a conflict resolver over a conversation store.
func NewResolver(store *conversation.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:  store,
		logger: logger.With(zap.String("component", "conflict_resolver")),
	}
}

// Resolve applies one strategy to each conflict, writes the winning
// value back to every involved agent's sync memory, and appends a
// resolution record. user_choice requires the chosen value in choices,
// keyed by conflict id; a missing choice surfaces ConflictUnresolved
// rather than silently discarding the conflict.
func (r *Resolver) Resolve(conflicts []conversation.StateConflict, strategy conversation.ResolutionStrategy, appliedBy string, choices map[string]any) ([]conversation.ConflictResolution, error) {
	resolutions := make([]conversation.ConflictResolution, 0, len(conflicts))
	for _, conflict := range conflicts {
		value, err := r.chooseValue(conflict, strategy, choices)
		if err != nil {
			return resolutions, err
		}

		if conflict.Key != "" {
			for _, agentID := range conflict.InvolvedAgents {
				if _, err := r.store.Dispatch(conversation.UpdateAgentSyncState{
					AgentID: agentID,
					Memory:  map[string]any{conflict.Key: value},
				}); err != nil {
					return resolutions, err
				}
			}
		}

		resolution := conversation.ConflictResolution{
			ConflictID: conflict.ID,
			Strategy:   strategy,
			Resolution: map[string]any{"key": conflict.Key, "value": value},
			AppliedBy:  appliedBy,
			AppliedAt:  time.Now(),
		}
		if _, err := r.store.Dispatch(conversation.ResolveConflict{Resolution: resolution}); err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, resolution)

		r.logger.Info("conflict resolved",
			zap.String("conflict_id", conflict.ID),
			zap.String("strategy", string(strategy)),
			zap.String("key", conflict.Key),
		)
	}
	return resolutions, nil
}

// chooseValue picks the surviving value for a conflict under the given
// strategy.
func (r *Resolver) chooseValue(conflict conversation.StateConflict, strategy conversation.ResolutionStrategy, choices map[string]any) (any, error) {
	switch strategy {
	case conversation.ResolveMerge:
		// Newest write wins; map values are shallow-merged instead.
		return mergeValues(conflict), nil
	case conversation.ResolvePriority:
		// First involved agent has priority.
		if len(conflict.InvolvedAgents) > 0 {
			return conflict.Data[conflict.InvolvedAgents[0]], nil
		}
		return nil, nil
	case conversation.ResolveUserChoice:
		value, ok := choices[conflict.ID]
		if !ok {
			return nil, types.NewErrorf(types.ErrConflictUnresolved,
				"conflict %s needs a user choice", conflict.ID)
		}
		return value, nil
	case conversation.ResolveDefault:
		// Clear the contested key.
		return nil, nil
	default:
		return nil, types.NewErrorf(types.ErrConflictUnresolved,
			"conflict %s has no applicable strategy %q", conflict.ID, strategy)
	}
}

// mergeValues shallow-merges map values across agents; for scalar
// values the lexically last agent's value wins, which keeps merging
// deterministic.
func mergeValues(conflict conversation.StateConflict) any {
	merged := make(map[string]any)
	mapsOnly := true

	agents := append([]string{}, conflict.InvolvedAgents...)
	sort.Strings(agents)

	var last any
	for _, agentID := range agents {
		value := conflict.Data[agentID]
		last = value
		m, ok := value.(map[string]any)
		if !ok {
			mapsOnly = false
			continue
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	if mapsOnly && len(merged) > 0 {
		return merged
	}
	return last
}
