package agent

import "time"

// CapabilityLevel ranks how proficient an agent is at a capability.
type CapabilityLevel string

const (
	LevelBasic        CapabilityLevel = "basic"
	LevelIntermediate CapabilityLevel = "intermediate"
	LevelAdvanced     CapabilityLevel = "advanced"
	LevelExpert       CapabilityLevel = "expert"
)

// Capability describes one thing an agent can do.
type Capability struct {
	Type        string          `json:"type"`
	Level       CapabilityLevel `json:"level"`
	Description string          `json:"description,omitempty"`
}

// Profile describes a registered agent. Profiles are immutable after
// registration except for the Active flag; every other component
// references agents by id and never owns the record.
type Profile struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Specialization []string     `json:"specialization,omitempty"`
	Capabilities   []Capability `json:"capabilities,omitempty"`
	Personality    []string     `json:"personality,omitempty"`
	Active         bool         `json:"active"`
	RegisteredAt   time.Time    `json:"registered_at"`
}

// HasCapability reports whether the profile lists a capability type.
func (p *Profile) HasCapability(capType string) bool {
	for _, c := range p.Capabilities {
		if c.Type == capType {
			return true
		}
	}
	return false
}

// HasSpecialization reports whether the profile lists a specialization tag.
func (p *Profile) HasSpecialization(tag string) bool {
	for _, s := range p.Specialization {
		if s == tag {
			return true
		}
	}
	return false
}
