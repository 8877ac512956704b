package featureflags

import (
	"context"
	"sync"
	"time"
)

// Repository stores switch overrides. Switches never changed have no row.
type Repository interface {
	// Overrides returns every stored override keyed by switch.
	Overrides(ctx context.Context) (map[string]Override, error)

	// Save stores all changes or none of them.
	Save(ctx context.Context, changes []Override) error
}

// InMemoryRepository keeps overrides in process. It serves single-instance
// deployments and tests; replicas that must agree use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	overrides map[string]Override
}

// NewInMemoryRepository returns an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{overrides: make(map[string]Override)}
}

// Overrides returns a copy of the stored overrides.
func (r *InMemoryRepository) Overrides(_ context.Context) (map[string]Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Override, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = v
	}
	return out, nil
}

// Save stores changes, stamping those without a time.
func (r *InMemoryRepository) Save(_ context.Context, changes []Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, c := range changes {
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
		r.overrides[c.Key] = c
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
