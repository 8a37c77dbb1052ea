package db

const CreateMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
`

// A job is pending until it has been reported Done or Failed.
const (
	InsertJobOrder = `
		INSERT INTO job_orders (id, printer_ip, printer_no, command, command_rule, template)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	ListPendingJobOrders = `
		SELECT id, printer_ip, printer_no, command
		FROM job_orders WHERE status NOT IN ('Done', 'Failed') ORDER BY id ASC
	`

	GetJobOrderByID = `
		SELECT id, printer_ip, printer_no, command, command_rule, template, status, reported_printer_ip, updated_at
		FROM job_orders WHERE id = ?
	`

	UpdateJobOrderStatus = `
		UPDATE job_orders SET status = ?, reported_printer_ip = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`
)

const (
	InsertEquipmentProperty = `
		INSERT INTO equipment_properties (job_order_id, property, value) VALUES (?, ?, ?)
	`

	ListEquipmentProperties = `
		SELECT job_order_id, property, value FROM equipment_properties WHERE job_order_id = ? ORDER BY id ASC
	`

	InsertLabelProperty = `
		INSERT INTO label_properties (job_order_id, type_property, property_code, value) VALUES (?, ?, ?, ?)
	`

	ListLabelProperties = `
		SELECT job_order_id, type_property, property_code, value FROM label_properties WHERE job_order_id = ? ORDER BY id ASC
	`
)

const (
	UpsertPrinterStatus = `
		INSERT INTO printer_status (printer_no, status, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (printer_no) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`
)

const (
	InsertAuditLog = `
		INSERT INTO audit_log (message, severity, category, created_at) VALUES (?, ?, ?, ?)
		RETURNING id
	`

	ListRecentAuditLogs = `
		SELECT id, message, severity, category, created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?
	`

	DeleteAuditLogsBefore = `
		DELETE FROM audit_log WHERE created_at < ?
	`
)
