package agent

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func genProfile(rt *rapid.T) Profile {
	capCount := rapid.IntRange(0, 4).Draw(rt, "cap_count")
	caps := make([]Capability, 0, capCount)
	for i := 0; i < capCount; i++ {
		caps = append(caps, Capability{
			Type:  rapid.SampledFrom([]string{"web_search", "summarization", "code_generation", "planning"}).Draw(rt, fmt.Sprintf("cap_%d", i)),
			Level: rapid.SampledFrom([]CapabilityLevel{LevelBasic, LevelIntermediate, LevelAdvanced, LevelExpert}).Draw(rt, fmt.Sprintf("level_%d", i)),
		})
	}
	return Profile{
		ID:             rapid.StringMatching(`agent-[a-z]{3}`).Draw(rt, "id"),
		Specialization: rapid.SliceOfN(rapid.SampledFrom([]string{"research", "engineering", "writing"}), 0, 3).Draw(rt, "spec"),
		Capabilities:   caps,
		Active:         rapid.Bool().Draw(rt, "active"),
	}
}

func genCriteria(rt *rapid.T, id string) *SelectionCriteria {
	if rapid.Bool().Draw(rt, "nil_criteria") {
		return nil
	}
	c := &SelectionCriteria{
		Capabilities:   rapid.SliceOfN(rapid.SampledFrom([]string{"web_search", "summarization", "code_generation"}), 0, 3).Draw(rt, "want_caps"),
		Specialization: rapid.SliceOfN(rapid.SampledFrom([]string{"research", "engineering"}), 0, 2).Draw(rt, "want_spec"),
	}
	if rapid.Bool().Draw(rt, "preferred") {
		c.PreferredAgents = []string{id}
	}
	if rapid.Bool().Draw(rt, "excluded") {
		c.ExcludeAgents = []string{id}
	}
	return c
}

// A score is always inside [0,1], and the hard zeros hold regardless of
// every other term.
func TestProperty_ScoreBounded(t *testing.T) {
	dir := NewDirectory(nil)
	scorer := NewScorer(dir)

	rapid.Check(t, func(rt *rapid.T) {
		p := genProfile(rt)
		criteria := genCriteria(rt, p.ID)

		score := scorer.Score(p, "task", criteria)
		if score < 0 || score > 1 {
			rt.Fatalf("score %v outside [0,1]", score)
		}
		if !p.Active && score != 0 {
			rt.Fatalf("inactive agent scored %v", score)
		}
		if criteria != nil {
			for _, id := range criteria.ExcludeAgents {
				if id == p.ID && score != 0 {
					rt.Fatalf("excluded agent scored %v", score)
				}
			}
		}
	})
}

// Scoring is deterministic: the same inputs always produce the same
// score.
func TestProperty_ScoreDeterministic(t *testing.T) {
	dir := NewDirectory(nil)
	scorer := NewScorer(dir)

	rapid.Check(t, func(rt *rapid.T) {
		p := genProfile(rt)
		criteria := genCriteria(rt, p.ID)

		first := scorer.Score(p, "task", criteria)
		for i := 0; i < 3; i++ {
			if got := scorer.Score(p, "task", criteria); got != first {
				rt.Fatalf("score changed across calls: %v then %v", first, got)
			}
		}
	})
}
