package core

import "context"

type JobSource interface {
	FetchPending(ctx context.Context) ([]JobOrder, error)
	FetchDetail(ctx context.Context, order JobOrder) (*JobDetail, error)
	ReportStatus(ctx context.Context, jobID int64, destination, status string) error
	ReportPrinterStatus(ctx context.Context, printerNo, status string) error
}

// Renderer turns a materialized template into a delivery-ready artifact.
// Any output file it writes must live next to templatePath.
type Renderer interface {
	Render(ctx context.Context, detail *JobDetail, templatePath string) (*Artifact, error)
}

type StatusChecker interface {
	PrinterStatus(ctx context.Context, address, printerNo string) (string, error)
}

type PrintDeliverer interface {
	Print(ctx context.Context, address string, artifact *Artifact) (bool, error)
}

type MailDeliverer interface {
	Mail(ctx context.Context, rule string, artifact *Artifact) (bool, error)
}

type HealthSink interface {
	Publish(ctx context.Context, snapshot HealthSnapshot) error
}

type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}
