package handoff

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcoord/agent"
	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
)

type fixture struct {
	dir   *agent.Directory
	store *conversation.Store
	coord *Coordinator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	dir := agent.NewDirectory(nil)
	store := conversation.NewStore("conv-1", nil, nil)
	coord := NewCoordinator(dir, agent.NewScorer(dir), store, opts, nil)
	return &fixture{dir: dir, store: store, coord: coord}
}

func (f *fixture) addAgent(t *testing.T, id string, spec ...string) {
	t.Helper()
	f.dir.Register(agent.Profile{
		ID:             id,
		Name:           id,
		Specialization: spec,
		Active:         true,
		RegisteredAt:   time.Now(),
	})
	_, err := f.store.Dispatch(conversation.RegisterAgent{AgentID: id})
	require.NoError(t, err)
	_, err = f.store.Dispatch(conversation.ActivateAgent{AgentID: id})
	require.NoError(t, err)
}

func TestSwitchToAgent_Simple(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "a")
	f.addAgent(t, "b")

	var emitted []conversation.HandoffRequest
	f.store.Bus().Subscribe(conversation.EventAgentHandoff, func(e conversation.Event) {
		emitted = append(emitted, e.(conversation.HandoffEvent).Request)
	})

	before := f.store.Version()
	msg, err := f.coord.SwitchToAgent("b", "needs b")
	require.NoError(t, err)

	state := f.store.State()
	assert.Equal(t, "b", state.CurrentAgent)
	assert.Equal(t, before+1, state.Version, "a plain switch is exactly one transition")

	require.Len(t, emitted, 1)
	assert.Equal(t, "b", emitted[0].ToAgent)
	assert.Equal(t, conversation.HandoffCompleted, emitted[0].Status)
	assert.Equal(t, msg.ID, emitted[0].ID)
}

func TestSwitchToAgent_UnknownAgentFails(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	_, err := f.coord.SwitchToAgent("ghost", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnavailable, types.GetErrorCode(err))
	assert.Empty(t, f.store.State().CurrentAgent, "no fallback agent is selected")
}

func TestSwitchToAgent_InactiveAgentFails(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.dir.Register(agent.Profile{ID: "sleepy", Name: "sleepy", Active: false})

	_, err := f.coord.SwitchToAgent("sleepy", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnavailable, types.GetErrorCode(err))
}

func TestSwitchToAgent_ActivatesUnknownToConversation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.dir.Register(agent.Profile{ID: "b", Name: "b", Active: true})

	_, err := f.coord.SwitchToAgent("b", "")
	require.NoError(t, err)

	state := f.store.State()
	assert.Equal(t, "b", state.CurrentAgent)
	assert.True(t, state.IsActive("b"))
	assert.Contains(t, state.AgentStates, "b")
}

func TestSwitchToAgent_PreservesContext(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "a")
	f.addAgent(t, "b")

	_, err := f.coord.SwitchToAgent("a", "")
	require.NoError(t, err)
	_, err = f.store.Dispatch(conversation.UpdateAgentSyncState{
		AgentID: "a",
		Memory:  map[string]any{"topic": "coordination"},
	})
	require.NoError(t, err)

	_, err = f.coord.SwitchToAgent("b", "")
	require.NoError(t, err)

	memory := f.store.State().AgentStates["b"].Memory
	require.Contains(t, memory, "topic")
	assert.Equal(t, "coordination", memory["topic"].Value)
}

func TestSwitchToAgent_NoPreservationWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.PreserveContext = false
	f := newFixture(t, opts)
	f.addAgent(t, "a")
	f.addAgent(t, "b")

	_, err := f.coord.SwitchToAgent("a", "")
	require.NoError(t, err)
	_, err = f.store.Dispatch(conversation.UpdateAgentSyncState{
		AgentID: "a",
		Memory:  map[string]any{"topic": "coordination"},
	})
	require.NoError(t, err)

	_, err = f.coord.SwitchToAgent("b", "")
	require.NoError(t, err)
	assert.Empty(t, f.store.State().AgentStates["b"].Memory)
}

func TestRequestAcceptHandoff(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "a")
	f.addAgent(t, "b")

	req, err := f.coord.RequestHandoff("a", "b", "handover", conversation.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, f.store.State().PendingHandoffs(), 1)
	assert.Empty(t, f.store.State().CurrentAgent, "request alone does not switch")

	require.NoError(t, f.coord.AcceptHandoff(req.ID))

	state := f.store.State()
	assert.Equal(t, "b", state.CurrentAgent)
	assert.Equal(t, conversation.HandoffCompleted, state.Handoffs[0].Status)
	assert.Empty(t, state.PendingHandoffs())
}

func TestRejectHandoff(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "b")

	req, err := f.coord.RequestHandoff("", "b", "handover", conversation.PriorityLow)
	require.NoError(t, err)
	require.NoError(t, f.coord.RejectHandoff(req.ID, "busy"))

	state := f.store.State()
	assert.Equal(t, conversation.HandoffRejected, state.Handoffs[0].Status)
	assert.Equal(t, "busy", state.Handoffs[0].RejectReason)
	assert.Empty(t, state.CurrentAgent)
}

func TestRequestHandoff_UnavailableTarget(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	_, err := f.coord.RequestHandoff("a", "ghost", "", conversation.PriorityMedium)
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnavailable, types.GetErrorCode(err))
}

func TestAcceptHandoff_UnknownID(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	err := f.coord.AcceptHandoff("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrHandoffNotFound, types.GetErrorCode(err))
}

func TestMaybeAutoHandoff(t *testing.T) {
	opts := DefaultOptions()
	opts.EnableAutoHandoffs = true
	opts.HandoffThreshold = 0.6
	f := newFixture(t, opts)
	f.addAgent(t, "generalist")
	f.addAgent(t, "researcher", "research")

	_, err := f.coord.SwitchToAgent("generalist", "")
	require.NoError(t, err)
	_, err = f.store.Dispatch(conversation.UpdateContext{Goal: ptr("survey the literature")})
	require.NoError(t, err)

	msg, err := f.coord.MaybeAutoHandoff(&agent.SelectionCriteria{
		Specialization: []string{"research"},
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "researcher", f.store.State().CurrentAgent)
}

func TestMaybeAutoHandoff_DisabledDoesNothing(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "a")

	msg, err := f.coord.MaybeAutoHandoff(nil)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestUnregisterAgentClearsCurrent(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.addAgent(t, "a")

	_, err := f.coord.SwitchToAgent("a", "")
	require.NoError(t, err)
	require.NoError(t, f.coord.UnregisterAgent("a"))

	assert.Nil(t, f.dir.Get("a"))
	state := f.store.State()
	assert.Empty(t, state.CurrentAgent)
	assert.NotContains(t, state.AgentStates, "a")
}

func TestExpirePending(t *testing.T) {
	opts := DefaultOptions()
	opts.PendingTTL = time.Nanosecond
	f := newFixture(t, opts)
	f.addAgent(t, "b")

	_, err := f.coord.RequestHandoff("", "b", "stale", conversation.PriorityLow)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	assert.Equal(t, 1, f.coord.ExpirePending())

	state := f.store.State()
	assert.Equal(t, conversation.HandoffRejected, state.Handoffs[0].Status)
	assert.Equal(t, "expired", state.Handoffs[0].RejectReason)
}

// Collectors register on the default prometheus registry, so every test
// takes a fresh namespace.
var metricsNamespaceCounter atomic.Int64

func TestCoordinator_CollectorCountsHandoffOutcomes(t *testing.T) {
	ns := fmt.Sprintf("handoff_test_%d", metricsNamespaceCounter.Add(1))
	f := newFixture(t, DefaultOptions())
	f.coord.SetCollector(metrics.NewCollector(ns, nil))
	f.addAgent(t, "a")
	f.addAgent(t, "b")

	_, err := f.coord.SwitchToAgent("a", "")
	require.NoError(t, err)
	_, err = f.coord.SwitchToAgent("ghost", "")
	require.Error(t, err)
	req, err := f.coord.RequestHandoff("a", "b", "handover", conversation.PriorityLow)
	require.NoError(t, err)
	require.NoError(t, f.coord.RejectHandoff(req.ID, "busy"))

	// completed, failed, requested, and rejected series all exist.
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, ns+"_handoffs_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func ptr(s string) *string { return &s }
