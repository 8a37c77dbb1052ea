package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

type JobOperations struct {
	db *DB
}

func NewJobOperations(d *DB) *JobOperations {
	return &JobOperations{db: d}
}

// CreateJobOrder stores an order with its properties in one transaction.
func (o *JobOperations) CreateJobOrder(ctx context.Context, j *JobOrder, equipment []EquipmentProperty, labels []LabelProperty) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, o.db.Rebind(InsertJobOrder),
		j.ID, j.PrinterIP, j.PrinterNo, j.Command, j.CommandRule, j.Template); err != nil {
		return fmt.Errorf("failed to create job order: %w", err)
	}
	for _, p := range equipment {
		if _, err := tx.ExecContext(ctx, o.db.Rebind(InsertEquipmentProperty), j.ID, p.Property, p.Value); err != nil {
			return fmt.Errorf("failed to create equipment property: %w", err)
		}
	}
	for _, p := range labels {
		if _, err := tx.ExecContext(ctx, o.db.Rebind(InsertLabelProperty),
			j.ID, p.TypeProperty, p.PropertyCode, p.Value); err != nil {
			return fmt.Errorf("failed to create label property: %w", err)
		}
	}
	return tx.Commit()
}

func (o *JobOperations) ListPending(ctx context.Context) ([]*JobOrder, error) {
	rows, err := o.db.query(ctx, ListPendingJobOrders)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobOrder
	for rows.Next() {
		j := &JobOrder{}
		if err := rows.Scan(&j.ID, &j.PrinterIP, &j.PrinterNo, &j.Command); err != nil {
			return nil, fmt.Errorf("failed to scan job order: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) GetJobOrder(ctx context.Context, id int64) (*JobOrder, error) {
	j := &JobOrder{}
	var updatedAt sql.NullTime
	err := o.db.queryRow(ctx, GetJobOrderByID, id).Scan(
		&j.ID, &j.PrinterIP, &j.PrinterNo, &j.Command, &j.CommandRule,
		&j.Template, &j.Status, &j.ReportedPrinterIP, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job order %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job order: %w", err)
	}
	j.UpdatedAt = updatedAt.Time
	return j, nil
}

func (o *JobOperations) ListEquipment(ctx context.Context, jobID int64) ([]EquipmentProperty, error) {
	rows, err := o.db.query(ctx, ListEquipmentProperties, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment properties: %w", err)
	}
	defer rows.Close()

	var props []EquipmentProperty
	for rows.Next() {
		var p EquipmentProperty
		if err := rows.Scan(&p.JobOrderID, &p.Property, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan equipment property: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (o *JobOperations) ListLabels(ctx context.Context, jobID int64) ([]LabelProperty, error) {
	rows, err := o.db.query(ctx, ListLabelProperties, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list label properties: %w", err)
	}
	defer rows.Close()

	var props []LabelProperty
	for rows.Next() {
		var p LabelProperty
		if err := rows.Scan(&p.JobOrderID, &p.TypeProperty, &p.PropertyCode, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan label property: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (o *JobOperations) UpdateStatus(ctx context.Context, id int64, printerIP, status string) error {
	res, err := o.db.exec(ctx, UpdateJobOrderStatus, status, printerIP, id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job order %d: %w", id, ErrNotFound)
	}
	return nil
}

type PrinterOperations struct {
	db *DB
}

func NewPrinterOperations(d *DB) *PrinterOperations {
	return &PrinterOperations{db: d}
}

func (o *PrinterOperations) SetStatus(ctx context.Context, printerNo, status string) error {
	if _, err := o.db.exec(ctx, UpsertPrinterStatus, printerNo, status); err != nil {
		return fmt.Errorf("failed to update printer status: %w", err)
	}
	return nil
}

type AuditOperations struct {
	db *DB
}

func NewAuditOperations(d *DB) *AuditOperations {
	return &AuditOperations{db: d}
}

func (o *AuditOperations) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	err := o.db.queryRow(ctx, InsertAuditLog,
		log.Message, log.Severity, log.Category, log.CreatedAt.UTC()).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (o *AuditOperations) ListRecent(ctx context.Context, limit int) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.db.query(ctx, ListRecentAuditLogs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(&log.ID, &log.Message, &log.Severity, &log.Category, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// DeleteBefore removes audit entries older than cutoff and returns how many
// were removed.
func (o *AuditOperations) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := o.db.exec(ctx, DeleteAuditLogsBefore, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return res.RowsAffected()
}
