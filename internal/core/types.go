package core

import (
	"sort"
	"time"
)

type CommandKind string

const (
	CommandPrint CommandKind = "Print"
	CommandMail  CommandKind = "Mail"
)

// Equipment property names carried by a job detail.
const (
	PropPrinterName = "PRINTER_NAME"
	PropPrinterIP   = "PRINTER_IP"
	PropPaperWidth  = "PAPER_WIDTH"
	PropPaperHeight = "PAPER_HEIGHT"
	PropPrinterNo   = "PRINTER_NO"
)

// Status values exchanged with the job source.
const (
	StatusDone      = "Done"
	StatusFailed    = "Failed"
	PrinterStatusOK = "OK"
)

// JobOrder is a pending unit of work as listed by the job source.
type JobOrder struct {
	ID          int64
	Destination string
	PrinterNo   string
	Command     string
}

type EquipmentProperty struct {
	Property string
	Value    string
}

type LabelProperty struct {
	TypeProperty string
	PropertyCode string
	Value        string
}

// JobDetail is the hydrated form of a JobOrder.
type JobDetail struct {
	JobOrderID  int64
	Command     CommandKind
	CommandRule string
	Template    []byte
	Equipment   []EquipmentProperty
	Labels      []LabelProperty
}

func (d *JobDetail) HasTemplate() bool {
	return len(d.Template) > 0
}

// EquipmentProperty returns the first value recorded for name, or "".
func (d *JobDetail) EquipmentProperty(name string) string {
	for _, p := range d.Equipment {
		if p.Property == name {
			return p.Value
		}
	}
	return ""
}

// LabelParameter returns the first label property matching the
// (type, code) pair, or "" when there is none.
func (d *JobDetail) LabelParameter(typeProperty, propertyCode string) string {
	for _, p := range d.Labels {
		if p.TypeProperty == typeProperty && p.PropertyCode == propertyCode {
			return p.Value
		}
	}
	return ""
}

func (d *JobDetail) PrinterName() string { return d.EquipmentProperty(PropPrinterName) }
func (d *JobDetail) IPAddress() string   { return d.EquipmentProperty(PropPrinterIP) }
func (d *JobDetail) PaperWidth() string  { return d.EquipmentProperty(PropPaperWidth) }
func (d *JobDetail) PaperHeight() string { return d.EquipmentProperty(PropPaperHeight) }
func (d *JobDetail) PrinterNo() string   { return d.EquipmentProperty(PropPrinterNo) }

func (d *JobDetail) FactoryNumber() string {
	return d.LabelParameter("FactoryNumber", "FactoryNumber")
}

// Artifact is a rendered, delivery-ready document.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
	Data        []byte
}

type JobState string

const (
	JobPending        JobState = "pending"
	JobFetched        JobState = "fetched"
	JobFailed         JobState = "failed"
	JobRenderFailed   JobState = "render_failed"
	JobDone           JobState = "done"
	JobDeliveryFailed JobState = "delivery_failed"
)

// DestinationBatch is the ordered set of pending jobs for one destination.
type DestinationBatch struct {
	Destination string
	Jobs        []JobOrder
}

// GroupByDestination splits orders per destination key. Groups come back
// sorted by key and each group's jobs by ascending ID.
func GroupByDestination(orders []JobOrder) []DestinationBatch {
	index := make(map[string]int)
	var batches []DestinationBatch
	for _, o := range orders {
		i, ok := index[o.Destination]
		if !ok {
			i = len(batches)
			index[o.Destination] = i
			batches = append(batches, DestinationBatch{Destination: o.Destination})
		}
		batches[i].Jobs = append(batches[i].Jobs, o)
	}

	for i := range batches {
		jobs := batches[i].Jobs
		sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	}
	sort.Slice(batches, func(a, b int) bool {
		return batches[a].Destination < batches[b].Destination
	})
	return batches
}

type BatchResult struct {
	Destination string
	Attempted   int
	Delivered   int
	LastState   JobState
	Err         error
}

// HealthSnapshot is the published view of HealthInfo.
type HealthSnapshot struct {
	ServiceTitle     string    `json:"service_title"`
	MachineName      string    `json:"machine_name"`
	Version          string    `json:"version"`
	StartedAt        time.Time `json:"started_at"`
	Endpoint         string    `json:"endpoint"`
	LastActivityTime time.Time `json:"last_activity_time"`
	LastServiceError string    `json:"last_service_error"`
	LastErrorTime    time.Time `json:"last_error_time"`
	ProcessedCount   int64     `json:"processed_count"`
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Category int

const (
	CategoryStart    Category = 1
	CategoryStop     Category = 2
	CategoryPoll     Category = 3
	CategoryDispatch Category = 4
)

type AuditEntry struct {
	ID        int64     `json:"id,omitempty"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
