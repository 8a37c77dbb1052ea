package db

import "time"

type JobOrder struct {
	ID                int64     `json:"id"`
	PrinterIP         string    `json:"printer_ip"`
	PrinterNo         string    `json:"printer_no"`
	Command           string    `json:"command"`
	CommandRule       string    `json:"command_rule"`
	Template          []byte    `json:"-"`
	Status            string    `json:"status"`
	ReportedPrinterIP string    `json:"reported_printer_ip"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type EquipmentProperty struct {
	JobOrderID int64  `json:"job_order_id"`
	Property   string `json:"property"`
	Value      string `json:"value"`
}

type LabelProperty struct {
	JobOrderID   int64  `json:"job_order_id"`
	TypeProperty string `json:"type_property"`
	PropertyCode string `json:"property_code"`
	Value        string `json:"value"`
}

type AuditLog struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Category  int       `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
