// Package conversation implements the shared conversation state store.
//
// A SharedContext is the single source of truth for one conversation:
// current agent, active-agent set, shared memory, message and task history,
// and a monotonic version counter. It is mutated exclusively through named
// actions applied by a pure reducer (Apply), which makes every mutation
// auditable and replayable from an action log.
//
// The Store wraps the reducer with a mutex-guarded holder and a typed event
// bus. Event delivery is synchronous within the dispatching goroutine and
// ordered by subscription.
package conversation
