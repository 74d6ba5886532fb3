// Package collection implements the busy-guarded, pessimistically updated
// controller for a server-owned ordered collection, and the guard primitives
// shared by the non-CRUD resource controllers.
package collection

import (
	"sync"

	"github.com/shelfscan/shelfscan/internal/apierr"
)

// Op identifies the kind of mutation in flight for an entity.
type Op string

const (
	// OpCreating marks a collection-level create in flight.
	OpCreating Op = "creating"
	// OpUpdating marks an entity update in flight.
	OpUpdating Op = "updating"
	// OpDeleting marks an entity deletion in flight.
	OpDeleting Op = "deleting"
)

// CollectionKey is the sentinel id used for collection-level operations such
// as create. Server-assigned ids are always positive, so it cannot collide.
const CollectionKey = 0

// Busy tracks at most one in-flight mutation per entity id. A second acquire
// on the same id is rejected with a ConcurrencyError rather than queued.
type Busy struct {
	mu  sync.Mutex
	ops map[int]Op
}

// Acquire marks id busy with op. It fails when id is already busy.
func (b *Busy) Acquire(id int, op Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ops == nil {
		b.ops = make(map[int]Op)
	}
	if cur, exists := b.ops[id]; exists {
		return &apierr.ConcurrencyError{ID: id, Op: string(cur)}
	}
	b.ops[id] = op
	return nil
}

// Release clears the busy mark for id. Safe to call for a non-busy id.
func (b *Busy) Release(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ops, id)
}

// Current returns the in-flight op for id, if any.
func (b *Busy) Current(id int) (Op, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.ops[id]
	return op, ok
}

// Reset clears every busy mark. Used when the session changes under the
// controller.
func (b *Busy) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}
