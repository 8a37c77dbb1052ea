package health

import (
	"context"
	"sync"

	"github.com/orrn/labeldispatch/internal/core"
)

// Latest keeps the most recent snapshot in memory for the status API.
type Latest struct {
	mu   sync.RWMutex
	snap core.HealthSnapshot
	set  bool
}

func NewLatest() *Latest {
	return &Latest{}
}

func (l *Latest) Publish(_ context.Context, snapshot core.HealthSnapshot) error {
	l.mu.Lock()
	l.snap = snapshot
	l.set = true
	l.mu.Unlock()
	return nil
}

// Get reports false until the first snapshot has been published.
func (l *Latest) Get() (core.HealthSnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.set
}
