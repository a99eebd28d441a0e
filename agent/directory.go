package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Directory manages agent profile registration and lookup. It preserves
// registration order so selection tie-breaking stays deterministic.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	order    []string
	logger   *zap.Logger
}

// NewDirectory creates an empty agent directory.
func NewDirectory(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		profiles: make(map[string]*Profile),
		logger:   logger.With(zap.String("component", "agent_directory")),
	}
}

// Register adds or replaces a profile. Registration is idempotent per id:
// last write wins, and re-registering keeps the original position in the
// iteration order.
func (d *Directory) Register(profile Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if profile.RegisteredAt.IsZero() {
		profile.RegisteredAt = time.Now()
	}
	if _, exists := d.profiles[profile.ID]; !exists {
		d.order = append(d.order, profile.ID)
	}
	d.profiles[profile.ID] = &profile

	d.logger.Info("agent registered",
		zap.String("id", profile.ID),
		zap.String("name", profile.Name),
		zap.Bool("active", profile.Active),
	)
}

// Unregister removes a profile. Removing an unknown id is a no-op.
func (d *Directory) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.profiles[id]; !exists {
		return
	}
	delete(d.profiles, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.logger.Info("agent unregistered", zap.String("id", id))
}

// Get returns a copy of the profile, or nil when the id is unknown.
// Absence is a lookup miss, never an error.
func (d *Directory) Get(id string) *Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.profiles[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// List returns all profiles in registration order.
func (d *Directory) List() []Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Profile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.profiles[id])
	}
	return out
}

// ListActive returns the active profiles in registration order.
func (d *Directory) ListActive() []Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Profile
	for _, id := range d.order {
		if p := d.profiles[id]; p.Active {
			out = append(out, *p)
		}
	}
	return out
}

// SetActive flips the only mutable profile field. Returns false when the
// id is unknown.
func (d *Directory) SetActive(id string, active bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[id]
	if !ok {
		return false
	}
	p.Active = active
	return true
}

// Len returns the number of registered profiles.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.profiles)
}
