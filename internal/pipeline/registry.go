package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-local active-run registry (spec §4.9, §5):
// at-most-one pipeline run per project while the process is alive.
// It generalizes core/job/batch_job.go's single atomic.Bool "running"
// guard into a per-project set guarded by one mutex.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: map[uuid.UUID]struct{}{}}
}

// TryStart marks projectID active, returning false if it was already
// active. The caller must pair a successful TryStart with Finish.
func (r *Registry) TryStart(projectID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[projectID]; ok {
		return false
	}
	r.active[projectID] = struct{}{}
	return true
}

// Finish clears projectID's active entry. Safe to call even if
// TryStart was never called or already cleared — the pipeline's
// top-level cleanup runs unconditionally (spec §4.9's "finally"
// branch), so the registry entry is never left stuck by an
// unexpected error.
func (r *Registry) Finish(projectID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, projectID)
}

// IsActive reports whether projectID currently has a run in flight.
func (r *Registry) IsActive(projectID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[projectID]
	return ok
}
