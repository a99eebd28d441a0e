// Package snapshot provides point-in-time recovery and conflict
// management for a conversation.
//
// The Manager keeps the most recent snapshots in a bounded ring buffer
// and can persist each one to external sinks (Redis, a relational
// database) for durability beyond the process. Restoring a snapshot
// replaces the live conversation state atomically and is the sole
// recovery path after detected corruption.
//
// Conflict detection scans per-agent sync state for divergent writes to
// the same memory key inside a time window. Resolutions are append-only
// audit records; they never rewrite history.
package snapshot
