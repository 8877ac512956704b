package history

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	date     string
	lat, lon float64
}

// MemoryRepository keeps records in a map. Used in tests and when no
// database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[memoryKey]Record
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[memoryKey]Record)}
}

// Upsert stores rec, replacing any row with the same key.
func (r *MemoryRepository) Upsert(_ context.Context, rec Record) error {
	rec.Pollutants = maps.Clone(rec.Pollutants)
	if rec.Pollutants == nil {
		rec.Pollutants = map[string]float64{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[memoryKey{date: rec.Date.Format(DateLayout), lat: rec.Lat, lon: rec.Lon}] = rec
	return nil
}

// Range returns rows for the location between from and to inclusive.
func (r *MemoryRepository) Range(_ context.Context, lat, lon float64, from, to time.Time) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		if rec.Lat != lat || rec.Lon != lon {
			continue
		}
		if rec.Date.Before(from) || rec.Date.After(to) {
			continue
		}
		rec.Pollutants = maps.Clone(rec.Pollutants)
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Len returns the number of stored rows.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
