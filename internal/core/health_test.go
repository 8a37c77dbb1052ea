package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHealthInfoConcurrentProcessed(t *testing.T) {
	h := NewHealthInfo(ProductInfo{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.AddProcessed(1)
			}
		}()
	}
	wg.Wait()

	if got := h.Snapshot().ProcessedCount; got != 5000 {
		t.Errorf("processed = %d, want 5000", got)
	}
}

func TestHealthInfoRecordError(t *testing.T) {
	h := NewHealthInfo(ProductInfo{ServiceTitle: "svc"}, nil, nil)
	fixed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	h.RecordError("first")
	h.RecordError("second")

	snap := h.Snapshot()
	if snap.LastServiceError != "second. On 2024-03-01 10:30:00" {
		t.Errorf("last error = %q", snap.LastServiceError)
	}
	if !snap.LastErrorTime.Equal(fixed) {
		t.Errorf("last error time = %v", snap.LastErrorTime)
	}
	if snap.ServiceTitle != "svc" {
		t.Errorf("title = %q", snap.ServiceTitle)
	}
}

func TestHealthInfoAddProcessedIgnoresNonPositive(t *testing.T) {
	h := NewHealthInfo(ProductInfo{}, nil, nil)
	h.AddProcessed(0)
	h.AddProcessed(-3)
	if got := h.Snapshot().ProcessedCount; got != 0 {
		t.Errorf("processed = %d, want 0", got)
	}
}

func TestHealthInfoPublishBestEffort(t *testing.T) {
	sink := &memorySink{err: errors.New("sink down")}
	h := NewHealthInfo(ProductInfo{}, sink, nil)
	h.AddProcessed(2)

	h.Publish(context.Background())

	snap, n := sink.last()
	if n != 1 || snap.ProcessedCount != 2 {
		t.Errorf("published %d snapshots, last=%+v", n, snap)
	}
}

// stallingSink blocks until the publish context ends.
type stallingSink struct {
	got chan error
}

func (s *stallingSink) Publish(ctx context.Context, snap HealthSnapshot) error {
	<-ctx.Done()
	s.got <- ctx.Err()
	return ctx.Err()
}

func TestHealthInfoPublishIsBounded(t *testing.T) {
	sink := &stallingSink{got: make(chan error, 1)}
	h := NewHealthInfo(ProductInfo{}, sink, nil)
	h.SetPublishTimeout(20 * time.Millisecond)

	start := time.Now()
	h.Publish(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Publish took %v with a stalled sink", elapsed)
	}
	if err := <-sink.got; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("sink ctx err = %v, want deadline exceeded", err)
	}

	h.SetPublishTimeout(0)
	if h.publishTimeout != 20*time.Millisecond {
		t.Errorf("zero timeout replaced the deadline: %v", h.publishTimeout)
	}
	if NewHealthInfo(ProductInfo{}, nil, nil).publishTimeout != DefaultPublishTimeout {
		t.Error("default publish timeout not applied")
	}
}

func TestEventLogFallsBackOnAuditFailure(t *testing.T) {
	e := newEventLog(failingAudit{}, nil)
	// must not panic
	e.error(context.Background(), CategoryDispatch, "job failed")
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, entry AuditEntry) error {
	if !strings.Contains(entry.Message, "job") {
		return nil
	}
	return errors.New("audit store unavailable")
}
