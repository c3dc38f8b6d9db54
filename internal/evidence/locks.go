package evidence

import "sync"

// Locks hands out one mutex per business id so writers of the same entity
// serialize while writers of different entities never contend. A gate run
// holds the entity lock for its full read-evaluate-write cycle.
type Locks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewLocks creates an empty per-entity lock registry.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for the given business id, creating one if needed.
func (l *Locks) Get(id string) *sync.Mutex {
	l.mu.RLock()
	m, ok := l.locks[id]
	l.mu.RUnlock()
	if ok {
		return m
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock.
	if m, ok = l.locks[id]; ok {
		return m
	}
	m = &sync.Mutex{}
	l.locks[id] = m
	return m
}

// Len reports how many entity locks have been created.
func (l *Locks) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.locks)
}
