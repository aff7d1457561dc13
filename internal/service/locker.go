package service

import "sync"

// keyMutex serializes operations per ticket number. The repository does
// whole-document last-write-wins saves, so two concurrent mutations of
// the same ticket must never interleave.
type keyMutex struct {
	mu    sync.Mutex
	locks map[int]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[int]*entry)}
}

// Lock acquires the mutex for the given ticket number and returns its
// unlock function.
func (k *keyMutex) Lock(ticketNumber int) func() {
	k.mu.Lock()
	e, ok := k.locks[ticketNumber]
	if !ok {
		e = &entry{}
		k.locks[ticketNumber] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, ticketNumber)
		}
		k.mu.Unlock()
	}
}
