package auth

import (
	"context"
	"sync"
	"time"
)

// InMemoryDeviceRepository is an in-memory implementation of DeviceRepository.
// State is lost on restart; use PostgresDeviceRepository to share revocations
// across instances.
type InMemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewInMemoryDeviceRepository creates a new in-memory device repository.
func NewInMemoryDeviceRepository() *InMemoryDeviceRepository {
	return &InMemoryDeviceRepository{
		devices: make(map[string]*Device),
	}
}

// RecordIssue registers a token issue for the device, creating it if needed.
func (r *InMemoryDeviceRepository) RecordIssue(_ context.Context, deviceID string, at time.Time) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		d = &Device{ID: deviceID, FirstSeenAt: at}
		r.devices[deviceID] = d
	}
	d.LastIssuedAt = at
	d.IssueCount++

	deviceCopy := *d
	return &deviceCopy, nil
}

// FindByID finds a device by its identifier.
func (r *InMemoryDeviceRepository) FindByID(_ context.Context, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	// Return a copy to avoid mutation
	deviceCopy := *d
	return &deviceCopy, nil
}

// Revoke marks a device as revoked. Revoking twice keeps the first time.
func (r *InMemoryDeviceRepository) Revoke(_ context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	if d.RevokedAt == nil {
		revokedAt := at
		d.RevokedAt = &revokedAt
	}
	return nil
}
