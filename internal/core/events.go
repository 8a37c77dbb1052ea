package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// eventLog writes every significant event to the structured logger and to
// the audit sink. Audit failures fall back to the logger.
type eventLog struct {
	audit  AuditSink
	logger *zap.Logger
	now    func() time.Time
}

func newEventLog(audit AuditSink, logger *zap.Logger) *eventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventLog{audit: audit, logger: logger, now: time.Now}
}

func (e *eventLog) info(ctx context.Context, cat Category, msg string, fields ...zap.Field) {
	e.record(ctx, SeverityInfo, cat, msg, fields...)
}

func (e *eventLog) error(ctx context.Context, cat Category, msg string, fields ...zap.Field) {
	e.record(ctx, SeverityError, cat, msg, fields...)
}

func (e *eventLog) record(ctx context.Context, sev Severity, cat Category, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Int("category", int(cat)))
	switch sev {
	case SeverityError:
		e.logger.Error(msg, fields...)
	case SeverityWarning:
		e.logger.Warn(msg, fields...)
	default:
		e.logger.Info(msg, fields...)
	}

	if e.audit == nil {
		return
	}
	entry := AuditEntry{Message: msg, Severity: sev, Category: cat, CreatedAt: e.now()}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.Warn("audit record failed", zap.Error(err), zap.String("message", msg))
	}
}
