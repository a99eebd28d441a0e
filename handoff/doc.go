// Package handoff implements the agent-switch protocol on top of the
// conversation state store.
//
// The fast path is SwitchToAgent: validate, activate if needed, switch,
// best-effort context preservation, emit. The negotiated path is
// RequestHandoff followed by AcceptHandoff or RejectHandoff, driven by an
// external actor. Each handoff is a short-lived state machine:
// requested, then accepted or rejected, then completed.
package handoff
