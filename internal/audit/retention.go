package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/db"
)

const pruneInterval = 24 * time.Hour

// Pruner deletes stored audit entries older than the retention window,
// once at start and then daily.
type Pruner struct {
	ops           *db.AuditOperations
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

func NewPruner(d *db.DB, retentionDays int, logger *zap.Logger) *Pruner {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		ops:           db.NewAuditOperations(d),
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stopCh, p.done)
}

func (p *Pruner) Stop() {
	p.mu.Lock()
	stopCh, done := p.stopCh, p.done
	p.stopCh, p.done = nil, nil
	p.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (p *Pruner) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	p.pruneAndLog()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.pruneAndLog()
		}
	}
}

func (p *Pruner) pruneAndLog() {
	n, err := p.Prune(context.Background())
	if err != nil {
		p.logger.Warn("audit pruning failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("audit entries pruned", zap.Int64("count", n), zap.Int("retention_days", p.retentionDays))
	}
}

// Prune removes entries older than the retention window.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.retentionDays)
	return p.ops.DeleteBefore(ctx, cutoff)
}
