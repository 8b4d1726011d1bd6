// Package ownerlock serializes refresh runs per owner. Two refreshes for the
// same owner must not interleave their pool read-modify-write sequence;
// different owners proceed independently.
package ownerlock

import "sync"

type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the owner's mutex and returns its unlock func.
func (r *Registry) Lock(ownerKey string) func() {
	r.mu.Lock()
	lock, ok := r.locks[ownerKey]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[ownerKey] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
