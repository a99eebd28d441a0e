package agent

import (
	"fmt"
	"strings"
)

// Scoring weights. Base is what an active, unconstrained agent scores;
// the additive terms reward matching the caller's criteria.
const (
	scoreBase            = 0.5
	capabilityWeight     = 0.3
	specializationWeight = 0.2
	preferredBonus       = 0.2
)

// SelectionCriteria narrows which agents fit a task.
type SelectionCriteria struct {
	Capabilities    []string `json:"capabilities,omitempty"`
	Specialization  []string `json:"specialization,omitempty"`
	PreferredAgents []string `json:"preferred_agents,omitempty"`
	ExcludeAgents   []string `json:"exclude_agents,omitempty"`
}

// HandoffSuggestion proposes switching to a better-suited agent.
type HandoffSuggestion struct {
	ToAgent    string   `json:"to_agent"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Benefits   []string `json:"benefits,omitempty"`
}

// Scorer ranks agents against tasks. All methods are deterministic and
// side-effect-free.
type Scorer struct {
	dir *Directory
}

// NewScorer creates a scorer over a directory.
func NewScorer(dir *Directory) *Scorer {
	return &Scorer{dir: dir}
}

// Score rates how well an agent fits a task under the given criteria.
// The result is always in [0,1]. Inactive and explicitly excluded agents
// score exactly 0, short-circuiting every other term.
func (s *Scorer) Score(profile Profile, task string, criteria *SelectionCriteria) float64 {
	if !profile.Active {
		return 0
	}
	if criteria != nil {
		for _, id := range criteria.ExcludeAgents {
			if id == profile.ID {
				return 0
			}
		}
	}

	score := scoreBase
	if criteria != nil {
		if n := len(criteria.Capabilities); n > 0 {
			matched := 0
			for _, want := range criteria.Capabilities {
				if profile.HasCapability(want) {
					matched++
				}
			}
			score += capabilityWeight * float64(matched) / float64(n)
		}
		if n := len(criteria.Specialization); n > 0 {
			matched := 0
			for _, want := range criteria.Specialization {
				if profile.HasSpecialization(want) {
					matched++
				}
			}
			score += specializationWeight * float64(matched) / float64(n)
		}
		for _, id := range criteria.PreferredAgents {
			if id == profile.ID {
				score += preferredBonus
				break
			}
		}
	}

	return clamp01(score)
}

// SelectOptimal returns the active agent with the strictly highest score
// for the task, or nil when no agent scores above zero. Ties break by
// directory registration order: the first registered wins.
func (s *Scorer) SelectOptimal(task string, criteria *SelectionCriteria) *Profile {
	var best *Profile
	bestScore := 0.0

	for _, p := range s.dir.ListActive() {
		sc := s.Score(p, task, criteria)
		if sc > bestScore {
			pCopy := p
			best = &pCopy
			bestScore = sc
		}
	}
	return best
}

// SuggestHandoff proposes a switch away from the current agent. It
// returns nil when no task is set or when the current agent is already
// optimal. Confidence equals the selected agent's score.
func (s *Scorer) SuggestHandoff(currentAgentID, task string, criteria *SelectionCriteria) *HandoffSuggestion {
	if task == "" {
		return nil
	}
	best := s.SelectOptimal(task, criteria)
	if best == nil || best.ID == currentAgentID {
		return nil
	}

	return &HandoffSuggestion{
		ToAgent:    best.ID,
		Reason:     fmt.Sprintf("agent %s is better suited for: %s", best.Name, task),
		Confidence: s.Score(*best, task, criteria),
		Benefits:   benefitsFor(*best, criteria),
	}
}

// benefitsFor derives human-readable benefit strings from the matched
// criteria.
func benefitsFor(p Profile, criteria *SelectionCriteria) []string {
	var benefits []string
	if criteria != nil {
		for _, want := range criteria.Capabilities {
			for _, c := range p.Capabilities {
				if c.Type == want {
					benefits = append(benefits,
						fmt.Sprintf("%s capability at %s level", c.Type, c.Level))
				}
			}
		}
	}
	if len(p.Specialization) > 0 {
		benefits = append(benefits,
			fmt.Sprintf("specialized in %s", strings.Join(p.Specialization, ", ")))
	}
	return benefits
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
