// Package workflow drives bounded multi-step task execution for the
// current agent of a conversation.
//
// A Workflow is an audit trail of AgentSteps: steps are appended at
// prepare-time, mutated in place at execute-time, and never deleted.
// The Engine owns one running workflow at a time and executes steps
// strictly sequentially. ContinueUntil is the control loop: prepare,
// execute, count, evaluate the caller's termination predicate, bounded
// by max steps and wall-clock duration. Pause, resume, and cancel are
// cooperative flags polled at the top of each loop iteration; an
// in-flight tool or reasoning call is never preempted.
package workflow
