package jobsource

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/core"
	"github.com/orrn/labeldispatch/internal/db"
)

// SQLSource reads job orders straight from the job tables.
type SQLSource struct {
	jobs     *db.JobOperations
	printers *db.PrinterOperations
	logger   *zap.Logger
}

func NewSQLSource(d *db.DB, logger *zap.Logger) *SQLSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLSource{
		jobs:     db.NewJobOperations(d),
		printers: db.NewPrinterOperations(d),
		logger:   logger,
	}
}

func (s *SQLSource) FetchPending(ctx context.Context) ([]core.JobOrder, error) {
	rows, err := s.jobs.ListPending(ctx)
	if err != nil {
		return nil, &core.TransportError{Op: "fetch pending jobs", Err: err}
	}
	s.logger.Debug("pending jobs loaded", zap.Int("count", len(rows)))
	orders := make([]core.JobOrder, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, core.JobOrder{
			ID:          r.ID,
			Destination: r.PrinterIP,
			PrinterNo:   r.PrinterNo,
			Command:     r.Command,
		})
	}
	return orders, nil
}

func (s *SQLSource) FetchDetail(ctx context.Context, order core.JobOrder) (*core.JobDetail, error) {
	op := fmt.Sprintf("fetch job %d", order.ID)
	job, err := s.jobs.GetJobOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.logger.Warn("job order missing from job tables", zap.Int64("job_id", order.ID))
			return nil, &core.TransportError{Op: op, Err: err, Details: "job not found"}
		}
		return nil, &core.TransportError{Op: op, Err: err}
	}
	equipment, err := s.jobs.ListEquipment(ctx, order.ID)
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: err}
	}
	labels, err := s.jobs.ListLabels(ctx, order.ID)
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: err}
	}

	detail := &core.JobDetail{
		JobOrderID:  job.ID,
		Command:     core.CommandKind(job.Command),
		CommandRule: job.CommandRule,
		Template:    job.Template,
	}
	for _, e := range equipment {
		detail.Equipment = append(detail.Equipment, core.EquipmentProperty{Property: e.Property, Value: e.Value})
	}
	for _, l := range labels {
		detail.Labels = append(detail.Labels, core.LabelProperty{
			TypeProperty: l.TypeProperty,
			PropertyCode: l.PropertyCode,
			Value:        l.Value,
		})
	}
	return detail, nil
}

func (s *SQLSource) ReportStatus(ctx context.Context, jobID int64, destination, status string) error {
	if err := s.jobs.UpdateStatus(ctx, jobID, destination, status); err != nil {
		return &core.TransportError{Op: fmt.Sprintf("update job %d status", jobID), Err: err}
	}
	return nil
}

func (s *SQLSource) ReportPrinterStatus(ctx context.Context, printerNo, status string) error {
	if err := s.printers.SetStatus(ctx, printerNo, status); err != nil {
		return &core.TransportError{Op: fmt.Sprintf("update printer %s status", printerNo), Err: err}
	}
	return nil
}
