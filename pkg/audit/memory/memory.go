// Package memory provides an in-memory audit.Recorder. Records are kept in a
// bounded ring and lost when the process restarts.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/codechat/pkg/audit"
)

// DefaultCapacity is used when New is given a non-positive size.
const DefaultCapacity = 1000

// Recorder keeps the most recent records in memory.
type Recorder struct {
	mu    sync.RWMutex
	ring  []audit.Record
	next  int // slot the next record is written to
	count int
	ids   map[string]struct{}
}

var _ audit.Recorder = (*Recorder)(nil)

// New creates a recorder holding at most capacity records. The oldest record
// is evicted once the ring is full.
func New(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		ring: make([]audit.Record, capacity),
		ids:  make(map[string]struct{}, capacity),
	}
}

// Record stores rec.
func (r *Recorder) Record(_ context.Context, rec audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[rec.ID]; exists {
		return audit.ErrConflict
	}

	if r.count == len(r.ring) {
		delete(r.ids, r.ring[r.next].ID)
	} else {
		r.count++
	}
	r.ring[r.next] = rec
	r.ids[rec.ID] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return nil
}

// List returns up to limit records, newest first. When ctx carries a tenant
// only that tenant's records are returned.
func (r *Recorder) List(ctx context.Context, limit int) ([]audit.Record, error) {
	limit = audit.ClampLimit(limit)
	tenant := audit.GetTenant(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]audit.Record, 0, min(limit, r.count))
	for i := 0; i < r.count && len(out) < limit; i++ {
		idx := (r.next - 1 - i + len(r.ring)) % len(r.ring)
		rec := r.ring[idx]
		if tenant != "" && rec.Tenant != tenant {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of records held.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// HealthCheck always returns nil for the in-memory recorder.
func (r *Recorder) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory recorder.
func (r *Recorder) Close() error {
	return nil
}
