package audit

import (
	"context"
	"sync"

	"github.com/orrn/labeldispatch/internal/core"
	"github.com/orrn/labeldispatch/internal/db"
)

// SQLSink persists audit entries to the audit_log table.
type SQLSink struct {
	ops *db.AuditOperations
}

func NewSQLSink(d *db.DB) *SQLSink {
	return &SQLSink{ops: db.NewAuditOperations(d)}
}

func (s *SQLSink) Record(ctx context.Context, entry core.AuditEntry) error {
	return s.ops.CreateAuditLog(ctx, &db.AuditLog{
		Message:   entry.Message,
		Severity:  string(entry.Severity),
		Category:  int(entry.Category),
		CreatedAt: entry.CreatedAt,
	})
}

// Recent returns up to limit entries, newest first.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	logs, err := s.ops.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]core.AuditEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, core.AuditEntry{
			ID:        l.ID,
			Message:   l.Message,
			Severity:  core.Severity(l.Severity),
			Category:  core.Category(l.Category),
			CreatedAt: l.CreatedAt,
		})
	}
	return entries, nil
}

// Ring keeps the last entries in memory. It backs the audit endpoint when no
// audit database is configured.
type Ring struct {
	mu      sync.Mutex
	entries []core.AuditEntry
	next    int
	full    bool
	seq     int64
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 200
	}
	return &Ring{entries: make([]core.AuditEntry, size)}
}

func (r *Ring) Record(_ context.Context, entry core.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = r.seq
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *Ring) Recent(_ context.Context, limit int) ([]core.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]core.AuditEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out, nil
}
