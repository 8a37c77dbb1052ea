package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fakeSource struct {
	mu            sync.Mutex
	pending       []JobOrder
	pendingErr    error
	details       map[int64]*JobDetail
	detailCalls   []int64
	reports       []reportCall
	printerStates map[string]string
	// gate, when set, blocks FetchDetail until it is closed.
	gate chan struct{}
}

type reportCall struct {
	JobID       int64
	Destination string
	Status      string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		details:       make(map[int64]*JobDetail),
		printerStates: make(map[string]string),
	}
}

func (f *fakeSource) FetchPending(ctx context.Context) ([]JobOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return append([]JobOrder(nil), f.pending...), nil
}

func (f *fakeSource) FetchDetail(ctx context.Context, order JobOrder) (*JobDetail, error) {
	f.mu.Lock()
	gate := f.gate
	f.detailCalls = append(f.detailCalls, order.ID)
	d, ok := f.details[order.ID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, errors.New("job not found")
	}
	return d, nil
}

func (f *fakeSource) ReportStatus(ctx context.Context, jobID int64, destination, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, reportCall{JobID: jobID, Destination: destination, Status: status})
	return nil
}

func (f *fakeSource) ReportPrinterStatus(ctx context.Context, printerNo, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.printerStates[printerNo] = status
	return nil
}

func (f *fakeSource) fetched() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.detailCalls...)
}

func (f *fakeSource) reported() []reportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reportCall(nil), f.reports...)
}

type fakeRenderer struct {
	mu       sync.Mutex
	failFor  map[int64]error
	rendered []int64
	paths    []string
}

func (r *fakeRenderer) Render(ctx context.Context, detail *JobDetail, templatePath string) (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, detail.JobOrderID)
	r.paths = append(r.paths, templatePath)
	if err := r.failFor[detail.JobOrderID]; err != nil {
		return nil, err
	}
	out := filepath.Join(filepath.Dir(templatePath), "label.prn")
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return nil, err
	}
	return &Artifact{Name: "label.prn", Path: out, Data: data}, nil
}

func (r *fakeRenderer) renderedIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.rendered...)
}

type fakeStatus struct {
	status string
	err    error
}

func (s *fakeStatus) PrinterStatus(ctx context.Context, address, printerNo string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.status == "" {
		return PrinterStatusOK, nil
	}
	return s.status, nil
}

type fakePrinter struct {
	mu      sync.Mutex
	result  bool
	err     error
	printed []string
}

func (p *fakePrinter) Print(ctx context.Context, address string, a *Artifact) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, address)
	return p.result, p.err
}

func (p *fakePrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.printed)
}

type fakeMailer struct {
	mu    sync.Mutex
	rules []string
}

func (m *fakeMailer) Mail(ctx context.Context, rule string, a *Artifact) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return true, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *memoryAudit) Record(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) find(sev Severity, substr string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.Severity == sev && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

type memorySink struct {
	mu        sync.Mutex
	snapshots []HealthSnapshot
	err       error
}

func (s *memorySink) Publish(ctx context.Context, snap HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return s.err
}

func (s *memorySink) last() (HealthSnapshot, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return HealthSnapshot{}, 0
	}
	return s.snapshots[len(s.snapshots)-1], len(s.snapshots)
}

func printDetail(id int64, ip string) *JobDetail {
	return &JobDetail{
		JobOrderID: id,
		Command:    CommandPrint,
		Template:   []byte(`{"elements":[]}`),
		Equipment: []EquipmentProperty{
			{Property: PropPrinterName, Value: "Line-" + ip},
			{Property: PropPrinterIP, Value: ip},
			{Property: PropPrinterNo, Value: "P-" + ip},
		},
		Labels: []LabelProperty{
			{TypeProperty: "FactoryNumber", PropertyCode: "FactoryNumber", Value: "FN-1"},
		},
	}
}

type harness struct {
	source   *fakeSource
	renderer *fakeRenderer
	status   *fakeStatus
	printer  *fakePrinter
	mailer   *fakeMailer
	audit    *memoryAudit
	sink     *memorySink
	health   *HealthInfo
	pipeline *Pipeline
}

func newHarness(workDir string) *harness {
	h := &harness{
		source:   newFakeSource(),
		renderer: &fakeRenderer{failFor: make(map[int64]error)},
		status:   &fakeStatus{},
		printer:  &fakePrinter{result: true},
		mailer:   &fakeMailer{},
		audit:    &memoryAudit{},
		sink:     &memorySink{},
	}
	h.health = NewHealthInfo(ProductInfo{ServiceTitle: "test"}, h.sink, nil)
	h.pipeline = NewPipeline(PipelineDeps{
		Source:   h.source,
		Renderer: h.renderer,
		Status:   h.status,
		Printer:  h.printer,
		Mailer:   h.mailer,
		Health:   h.health,
		Audit:    h.audit,
		WorkDir:  workDir,
	})
	return h
}
