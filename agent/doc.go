// Package agent provides the agent directory and the suitability scorer.
//
// The Directory holds AgentProfile records: pure lookup and registration,
// no behavior. The Scorer is a deterministic, side-effect-free function
// from (agent, task, criteria) to a suitability score in [0,1], used for
// both initial agent selection and handoff suggestions.
package agent
