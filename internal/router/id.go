package router

import "sync"

// idAllocator hands out a process-wide-unique, monotonically increasing
// router id. Identity must be ordered and never reused, so it is a plain
// serialized counter rather than a tracked allocation set: no ad-hoc global
// mutable state, only this struct's mutex-guarded field.
type idAllocator struct {
	mu   sync.Mutex
	next uint32
}

// Allocate returns the next unique router id, starting at 1.
func (a *idAllocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}

// routerIDs is the process-wide allocator shared by every NewRouter call.
var routerIDs = &idAllocator{}
