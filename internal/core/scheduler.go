package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SchedulerConfig struct {
	Interval time.Duration
	// Endpoint identifies the job source. It must be set.
	Endpoint string
	// MaxWorkers caps concurrent destination workers. Zero means no cap.
	MaxWorkers int
}

// Scheduler runs the poll and dispatch loop. A pass never overlaps the
// next one: the timer is re-armed only after the pass returns.
type Scheduler struct {
	cfg      SchedulerConfig
	source   JobSource
	pipeline *Pipeline
	table    *DispatchTable
	health   *HealthInfo
	events   *eventLog
	logger   *zap.Logger

	// lifecycle serializes Start and Stop, including the wait for the
	// old loop, so a restart never overlaps a pass still in flight.
	lifecycle sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	workers sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, source JobSource, pipeline *Pipeline, health *HealthInfo, audit AuditSink, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, &ConfigurationError{Field: "poll_interval_seconds", Err: fmt.Errorf("must be positive, got %s", cfg.Interval)}
	}
	if cfg.Endpoint == "" {
		return nil, &ConfigurationError{Field: "job_source", Err: errors.New("endpoint is required")}
	}
	if source == nil || pipeline == nil {
		return nil, &ConfigurationError{Field: "job_source", Err: errors.New("job source and pipeline are required")}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if health == nil {
		health = pipeline.health
	}

	s := &Scheduler{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
		table:    NewDispatchTable(),
		health:   health,
		events:   newEventLog(audit, logger),
		logger:   logger,
	}
	s.events.info(context.Background(), CategoryStart,
		fmt.Sprintf("Print Task Frequency = %d", int(cfg.Interval/time.Second)),
		zap.String("endpoint", cfg.Endpoint))
	return s, nil
}

// Start arms the poll timer. Calling it on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx := context.Background()
	s.events.info(ctx, CategoryStart, "Starting print service...")
	s.running = true
	s.stopCh = make(chan struct{})
	s.loopWG.Add(1)
	go s.loop(s.stopCh)
	s.events.info(ctx, CategoryStart, "Print service has been started")
}

// Stop disarms the timer and waits for a pass in progress to end. Workers
// already spawned keep running.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := context.Background()
	s.events.info(ctx, CategoryStop, "Stopping print service...")
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.loopWG.Wait()
	s.events.info(ctx, CategoryStop, "Print service has been stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until every worker spawned so far has exited.
func (s *Scheduler) Wait() {
	s.workers.Wait()
}

func (s *Scheduler) ActiveDestinations() []string {
	return s.table.Keys()
}

func (s *Scheduler) Health() *HealthInfo {
	return s.health
}

func (s *Scheduler) loop(stopCh <-chan struct{}) {
	defer s.loopWG.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
			s.tick(ctx, timer)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, timer *time.Timer) {
	defer timer.Reset(s.cfg.Interval)
	s.RunPass(ctx)
}

// RunPass executes one poll and dispatch pass. It never panics and never
// returns an error; failures end up in the log and in HealthInfo.
func (s *Scheduler) RunPass(ctx context.Context) {
	passID := uuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Error getting jobs: %v", r)
			s.events.error(ctx, CategoryDispatch, msg, zap.String("pass_id", passID))
			s.health.RecordError(msg)
		}
	}()

	s.events.info(ctx, CategoryPoll, "Monitoring the print activity", zap.String("pass_id", passID))

	for _, key := range s.table.Reap() {
		s.logger.Debug("worker removed from dispatch table", zap.String("destination", key), zap.String("pass_id", passID))
	}

	orders, err := s.source.FetchPending(ctx)
	if err != nil {
		msg := fmt.Sprintf("Error getting jobs: %v", err)
		if details := ErrorDetails(err); details != "" {
			msg += " Details: " + details
		}
		s.events.error(ctx, CategoryDispatch, msg, zap.String("pass_id", passID), zap.Error(err))
		s.health.RecordError(msg)
		return
	}

	s.events.info(ctx, CategoryPoll, fmt.Sprintf("Jobs to process: %d", len(orders)), zap.String("pass_id", passID))
	if len(orders) == 0 {
		return
	}

	for _, batch := range GroupByDestination(orders) {
		if err := s.dispatch(ctx, passID, batch); err != nil {
			msg := fmt.Sprintf("Error: %v", err)
			if details := ErrorDetails(err); details != "" {
				msg += " Details: " + details
			}
			s.events.error(ctx, CategoryDispatch, msg,
				zap.String("pass_id", passID),
				zap.String("destination", batch.Destination),
				zap.Error(err),
			)
			s.health.RecordError(msg)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, passID string, batch DestinationBatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	if batch.Destination == "" {
		first := batch.Jobs[0]
		detail, err := s.source.FetchDetail(ctx, first)
		if err != nil {
			return err
		}
		return &RoutingError{JobID: first.ID, PrinterNo: detail.PrinterNo()}
	}

	if s.table.Has(batch.Destination) {
		s.events.info(ctx, CategoryDispatch,
			fmt.Sprintf("Print Thread already exists, will be printed later, PrinterIP=%s.", batch.Destination),
			zap.String("pass_id", passID))
		return nil
	}

	if s.cfg.MaxWorkers > 0 && s.table.Len() >= s.cfg.MaxWorkers {
		s.events.info(ctx, CategoryDispatch,
			fmt.Sprintf("Worker limit %d reached, will be printed later, PrinterIP=%s.", s.cfg.MaxWorkers, batch.Destination),
			zap.String("pass_id", passID))
		return nil
	}

	return s.spawn(ctx, passID, batch)
}

func (s *Scheduler) spawn(ctx context.Context, passID string, batch DestinationBatch) error {
	handle := NewWorkerHandle(batch.Destination, len(batch.Jobs))
	if err := s.table.Put(batch.Destination, handle); err != nil {
		return err
	}

	jobs := append([]JobOrder(nil), batch.Jobs...)
	workerCtx := context.WithoutCancel(ctx)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer handle.finish()
		res := s.pipeline.Run(workerCtx, batch.Destination, jobs)
		s.logger.Debug("worker finished",
			zap.String("worker_id", handle.ID.String()),
			zap.String("destination", res.Destination),
			zap.Int("attempted", res.Attempted),
			zap.Int("delivered", res.Delivered),
			zap.String("state", string(res.LastState)),
		)
	}()

	s.logger.Info("worker added to dispatch table",
		zap.String("destination", batch.Destination),
		zap.String("worker_id", handle.ID.String()),
		zap.String("pass_id", passID),
		zap.Int("jobs", len(jobs)),
	)
	return nil
}
