package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const templateFileName = "label.tmpl"

type PipelineDeps struct {
	Source   JobSource
	Renderer Renderer
	Status   StatusChecker
	Printer  PrintDeliverer
	Mailer   MailDeliverer
	Health   *HealthInfo
	Audit    AuditSink
	Logger   *zap.Logger
	// WorkDir is the parent of the per-job scratch directories.
	// Empty means os.TempDir().
	WorkDir string
}

// Pipeline processes one destination's ordered batch, stopping at the
// first job that does not end in Done.
type Pipeline struct {
	source   JobSource
	renderer Renderer
	status   StatusChecker
	printer  PrintDeliverer
	mailer   MailDeliverer
	health   *HealthInfo
	events   *eventLog
	logger   *zap.Logger
	workDir  string
	tracer   trace.Tracer
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	health := deps.Health
	if health == nil {
		health = NewHealthInfo(ProductInfo{}, nil, logger)
	}
	return &Pipeline{
		source:   deps.Source,
		renderer: deps.Renderer,
		status:   deps.Status,
		printer:  deps.Printer,
		mailer:   deps.Mailer,
		health:   health,
		events:   newEventLog(deps.Audit, logger),
		logger:   logger,
		workDir:  deps.WorkDir,
		tracer:   otel.Tracer("github.com/orrn/labeldispatch/internal/core"),
	}
}

// Run processes jobs in order. Jobs after a failed one are left untouched
// in the job source and come back on a later pass.
func (p *Pipeline) Run(ctx context.Context, destination string, jobs []JobOrder) (result BatchResult) {
	result.Destination = destination
	result.LastState = JobPending

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			result.Err = err
			p.events.error(ctx, CategoryDispatch, err.Error(), zap.String("destination", destination))
			p.health.RecordError(err.Error())
		}
		p.health.AddProcessed(result.Attempted)
		p.health.Publish(ctx)
		p.events.info(ctx, CategoryDispatch, fmt.Sprintf("Print is done. %d tasks", result.Attempted),
			zap.String("destination", destination))
	}()

	for _, order := range jobs {
		result.Attempted++

		state, detail, err := p.processJob(ctx, destination, order)
		result.LastState = state
		if err != nil {
			result.Err = err
			p.reportFailure(ctx, destination, order, detail, err)
			break
		}
		result.Delivered++
	}
	return result
}

func (p *Pipeline) reportFailure(ctx context.Context, destination string, order JobOrder, detail *JobDetail, err error) {
	var factoryNumber string
	if detail != nil {
		factoryNumber = detail.FactoryNumber()
	}

	var msg string
	var tm *TemplateMissingError
	if errors.As(err, &tm) {
		msg = err.Error()
	} else {
		msg = fmt.Sprintf("JobOrderID: %d. FactoryNumber: %s Error: %v", order.ID, factoryNumber, err)
		if details := ErrorDetails(err); details != "" {
			msg += " Details: " + details
		}
	}

	p.events.error(ctx, CategoryDispatch, msg,
		zap.Int64("job_id", order.ID),
		zap.String("factory_number", factoryNumber),
		zap.String("destination", destination),
		zap.Error(err),
	)
	p.health.RecordError(msg)
}

func (p *Pipeline) processJob(ctx context.Context, destination string, order JobOrder) (state JobState, detail *JobDetail, err error) {
	ctx, span := p.tracer.Start(ctx, "labeldispatch.job", trace.WithAttributes(
		attribute.Int64("job.id", order.ID),
		attribute.String("job.destination", destination),
	))
	defer func() {
		span.SetAttributes(attribute.String("job.state", string(state)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	detail, err = p.source.FetchDetail(ctx, order)
	if err != nil {
		return JobPending, nil, err
	}
	span.SetAttributes(attribute.String("job.command", string(detail.Command)))

	if !detail.HasTemplate() {
		return JobFailed, detail, &TemplateMissingError{JobID: detail.JobOrderID, FactoryNumber: detail.FactoryNumber()}
	}

	address := detail.IPAddress()
	if address == "" {
		return JobFetched, detail, &RoutingError{JobID: detail.JobOrderID, PrinterNo: detail.PrinterNo()}
	}

	scratch, err := os.MkdirTemp(p.workDir, "job-"+strconv.FormatInt(detail.JobOrderID, 10)+"-")
	if err != nil {
		return JobRenderFailed, detail, &RenderError{JobID: detail.JobOrderID, Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			p.logger.Warn("failed to remove scratch dir", zap.String("dir", scratch), zap.Error(rmErr))
		}
	}()

	artifact, err := p.render(ctx, detail, scratch)
	if err != nil {
		return JobRenderFailed, detail, err
	}

	var target string
	var delivered bool
	if detail.Command == CommandPrint {
		target = detail.PrinterName()
		delivered, err = p.deliverPrint(ctx, detail, address, artifact)
	} else {
		target = detail.CommandRule
		delivered, err = p.deliverMail(ctx, detail, artifact)
	}
	if err != nil {
		return JobDeliveryFailed, detail, err
	}
	if !delivered {
		return JobDeliveryFailed, detail, &DeliveryError{
			JobID:  detail.JobOrderID,
			Target: target,
			Err:    fmt.Errorf("status: %s", StatusFailed),
		}
	}

	p.health.Touch()
	verb := "Print to"
	if detail.Command != CommandPrint {
		verb = "Mail to"
	}
	p.events.info(ctx, CategoryDispatch,
		fmt.Sprintf("JobOrderID: %d. FactoryNumber: %s. %s: %s. Status: %s",
			detail.JobOrderID, detail.FactoryNumber(), verb, target, StatusDone),
		zap.Int64("job_id", detail.JobOrderID),
		zap.String("destination", destination),
	)

	if err := p.source.ReportStatus(ctx, detail.JobOrderID, destination, StatusDone); err != nil {
		return JobDone, detail, err
	}
	return JobDone, detail, nil
}

func (p *Pipeline) render(ctx context.Context, detail *JobDetail, scratch string) (*Artifact, error) {
	templatePath := filepath.Join(scratch, templateFileName)
	if err := os.WriteFile(templatePath, detail.Template, 0o600); err != nil {
		return nil, &RenderError{JobID: detail.JobOrderID, Err: err}
	}
	artifact, err := p.renderer.Render(ctx, detail, templatePath)
	if err != nil {
		return nil, &RenderError{JobID: detail.JobOrderID, Err: err}
	}
	if artifact == nil {
		return nil, &RenderError{JobID: detail.JobOrderID, Err: errors.New("renderer returned no artifact")}
	}
	return artifact, nil
}

func (p *Pipeline) deliverPrint(ctx context.Context, detail *JobDetail, address string, artifact *Artifact) (bool, error) {
	printerNo := detail.PrinterNo()
	status, err := p.status.PrinterStatus(ctx, address, printerNo)
	if err != nil {
		return false, &DeliveryError{JobID: detail.JobOrderID, Target: printerNo, Err: err}
	}
	if err := p.source.ReportPrinterStatus(ctx, printerNo, status); err != nil {
		return false, err
	}
	if status != PrinterStatusOK {
		return false, &DeliveryError{
			JobID:  detail.JobOrderID,
			Target: printerNo,
			Err:    fmt.Errorf("%w: cannot print to %s, not valid printer status: %s", ErrPrinterNotReady, printerNo, status),
		}
	}

	ok, err := p.printer.Print(ctx, address, artifact)
	if err != nil {
		return false, &DeliveryError{JobID: detail.JobOrderID, Target: address, Err: err}
	}
	return ok, nil
}

func (p *Pipeline) deliverMail(ctx context.Context, detail *JobDetail, artifact *Artifact) (bool, error) {
	ok, err := p.mailer.Mail(ctx, detail.CommandRule, artifact)
	if err != nil {
		return false, &DeliveryError{JobID: detail.JobOrderID, Target: detail.CommandRule, Err: err}
	}
	return ok, nil
}
