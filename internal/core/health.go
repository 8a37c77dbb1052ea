package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPublishTimeout bounds one health publish, so a slow sink cannot
// hold a destination worker open.
const DefaultPublishTimeout = 5 * time.Second

// ProductInfo is the static part of the health record.
type ProductInfo struct {
	ServiceTitle string
	MachineName  string
	Version      string
	Endpoint     string
}

// HealthInfo is the process wide liveness record. Workers update it
// concurrently, so every access goes through mu.
type HealthInfo struct {
	mu           sync.Mutex
	product      ProductInfo
	startedAt    time.Time
	lastActivity time.Time
	lastError    string
	lastErrorAt  time.Time
	processed    int64

	sink           HealthSink
	publishTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func NewHealthInfo(product ProductInfo, sink HealthSink, logger *zap.Logger) *HealthInfo {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthInfo{
		product:        product,
		sink:           sink,
		publishTimeout: DefaultPublishTimeout,
		logger:         logger,
		now:            time.Now,
	}
	h.startedAt = h.now()
	return h
}

// SetPublishTimeout changes the per-publish deadline. Non-positive values
// keep the current one. Call it before the scheduler starts.
func (h *HealthInfo) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		h.publishTimeout = d
	}
}

func (h *HealthInfo) Touch() {
	h.mu.Lock()
	h.lastActivity = h.now()
	h.mu.Unlock()
}

// RecordError overwrites the last error. The stored message carries the
// time suffix the monitoring side expects.
func (h *HealthInfo) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErrorAt = h.now()
	h.lastError = fmt.Sprintf("%s. On %s", msg, h.lastErrorAt.Format(time.DateTime))
}

func (h *HealthInfo) AddProcessed(n int) {
	if n <= 0 {
		return
	}
	h.mu.Lock()
	h.processed += int64(n)
	h.mu.Unlock()
}

func (h *HealthInfo) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		ServiceTitle:     h.product.ServiceTitle,
		MachineName:      h.product.MachineName,
		Version:          h.product.Version,
		StartedAt:        h.startedAt,
		Endpoint:         h.product.Endpoint,
		LastActivityTime: h.lastActivity,
		LastServiceError: h.lastError,
		LastErrorTime:    h.lastErrorAt,
		ProcessedCount:   h.processed,
	}
}

// Publish is best effort: a failing sink is logged and otherwise ignored.
func (h *HealthInfo) Publish(ctx context.Context) {
	if h.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()
	if err := h.sink.Publish(ctx, h.Snapshot()); err != nil {
		h.logger.Warn("health publish failed", zap.Error(err), zap.Duration("timeout", h.publishTimeout))
	}
}
