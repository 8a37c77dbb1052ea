package core

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerHandle tracks one in-flight destination worker. The worker calls
// finish when its pipeline returns.
type WorkerHandle struct {
	ID          uuid.UUID
	Destination string
	Jobs        int
	StartedAt   time.Time
	done        chan struct{}
}

func NewWorkerHandle(destination string, jobs int) *WorkerHandle {
	return &WorkerHandle{
		ID:          uuid.New(),
		Destination: destination,
		Jobs:        jobs,
		StartedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

func (h *WorkerHandle) finish() { close(h.done) }

// Finished reports whether the worker has exited. It never blocks.
func (h *WorkerHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// DispatchTable maps destination keys to their active worker. Only the
// scheduler goroutine writes to it; the lock lets status readers in.
type DispatchTable struct {
	mu      sync.RWMutex
	workers map[string]*WorkerHandle
}

func NewDispatchTable() *DispatchTable {
	return &DispatchTable{workers: make(map[string]*WorkerHandle)}
}

// Reap drops every entry whose worker has finished and returns the freed keys.
func (t *DispatchTable) Reap() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var freed []string
	for key, h := range t.workers {
		if h.Finished() {
			delete(t.workers, key)
			freed = append(freed, key)
		}
	}
	sort.Strings(freed)
	return freed
}

func (t *DispatchTable) Has(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.workers[key]
	return ok
}

func (t *DispatchTable) Put(key string, h *WorkerHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.workers[key]; ok {
		return ErrDestinationBusy
	}
	t.workers[key] = h
	return nil
}

func (t *DispatchTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.workers)
}

func (t *DispatchTable) Keys() []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.workers))
	for k := range t.workers {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
