package zones

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"MineSafetyAPI/internal/models"
)

// Registry holds the monitored zones loaded from configuration.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]models.Zone
}

// NewRegistry validates and indexes zones. Duplicate ids and negative worker
// counts are rejected.
func NewRegistry(zones []models.Zone) (*Registry, error) {
	r := &Registry{zones: make(map[string]models.Zone, len(zones))}
	now := time.Now().UTC()
	for _, z := range zones {
		if z.ID == "" {
			return nil, fmt.Errorf("zone %q has no id", z.Name)
		}
		if _, dup := r.zones[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", z.ID)
		}
		if z.WorkerCount < 0 {
			return nil, fmt.Errorf("zone %q: worker count must be >= 0", z.ID)
		}
		if z.CreatedAt.IsZero() {
			z.CreatedAt = now
		}
		r.zones[z.ID] = z
	}
	return r, nil
}

func (r *Registry) Get(id string) (models.Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return models.Zone{}, models.Errorf(models.ErrUnknownZone, "zone %q is not registered", id)
	}
	return z, nil
}

func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.zones[id]
	return ok
}

// List returns the zones ordered by id.
func (r *Registry) List() []models.Zone {
	r.mu.RLock()
	out := make([]models.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the registered zone ids ordered.
func (r *Registry) IDs() []string {
	list := r.List()
	ids := make([]string, len(list))
	for i, z := range list {
		ids[i] = z.ID
	}
	return ids
}

// Name returns the display name for id, or id itself when unknown.
func (r *Registry) Name(id string) string {
	if z, err := r.Get(id); err == nil && z.Name != "" {
		return z.Name
	}
	return id
}
