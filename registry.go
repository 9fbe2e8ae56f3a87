package asyncbridge

import (
	"sync"
	"weak"
)

// registry tracks pending promises so that a terminating loop can reject
// every one of them and unblock all waiters. Weak pointers keep abandoned
// promises (e.g. work outliving a timed-out caller) collectable.
type registry struct {
	mu     sync.Mutex
	data   map[uint64]weak.Pointer[promise]
	nextID uint64
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[uint64]weak.Pointer[promise]),
		nextID: 1,
	}
}

// newPromise creates a pending promise and registers it.
func (r *registry) newPromise() *promise {
	p := &promise{state: Pending}
	wp := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.nextID] = wp
	r.nextID++

	return p
}

// scavenge removes up to limit settled or collected entries. Called once per
// loop tick; map iteration order being unspecified makes repeated bounded
// passes cover the whole registry over time.
func (r *registry) scavenge(limit int) {
	if limit <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, wp := range r.data {
		if limit <= 0 {
			break
		}
		limit--

		p := wp.Value()
		if p == nil || p.State() != Pending {
			delete(r.data, id)
		}
	}
}

// rejectAll rejects every pending promise with err and clears the registry.
// Called during shutdown so no waiter hangs indefinitely.
func (r *registry) rejectAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, wp := range r.data {
		if p := wp.Value(); p != nil && p.State() == Pending {
			p.reject(err)
		}
		delete(r.data, id)
	}
}
