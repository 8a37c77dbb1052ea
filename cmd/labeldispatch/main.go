package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/api"
	"github.com/orrn/labeldispatch/internal/audit"
	"github.com/orrn/labeldispatch/internal/config"
	"github.com/orrn/labeldispatch/internal/core"
	"github.com/orrn/labeldispatch/internal/db"
	"github.com/orrn/labeldispatch/internal/health"
	"github.com/orrn/labeldispatch/internal/jobsource"
	"github.com/orrn/labeldispatch/internal/logging"
	"github.com/orrn/labeldispatch/internal/mail"
	"github.com/orrn/labeldispatch/internal/printer"
	"github.com/orrn/labeldispatch/internal/render"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "labeldispatch.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "labeldispatch: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &core.ConfigurationError{Field: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		var fe *config.FieldError
		if errors.As(err, &fe) {
			return nil, &core.ConfigurationError{Field: fe.Field, Err: errors.New(fe.Msg)}
		}
		return nil, &core.ConfigurationError{Err: err}
	}
	return cfg, nil
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return &core.ConfigurationError{Field: "logging", Err: err}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databases := newDBPool()
	defer databases.closeAll(logger)

	source, err := newJobSource(ctx, cfg, databases, logger)
	if err != nil {
		return err
	}

	auditSink, auditReader, pruner, err := newAudit(ctx, cfg, databases, logger)
	if err != nil {
		return err
	}
	if pruner != nil {
		pruner.Start()
		defer pruner.Stop()
	}

	latest := health.NewLatest()
	sinks := []core.HealthSink{latest}
	if cfg.Health.WebhookURL != "" {
		sinks = append(sinks, health.NewWebhookSink(health.WebhookConfig{
			URL:        cfg.Health.WebhookURL,
			Secret:     cfg.Health.WebhookSecret,
			RetryCount: cfg.Health.WebhookMaxRetries,
			RetryDelay: cfg.Health.WebhookRetryDelay,
			Timeout:    cfg.Health.WebhookTimeout,
		}, logger.Named("health.webhook")))
	}
	if cfg.Health.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Health.RedisAddr,
			Password: cfg.Health.RedisPassword,
			DB:       cfg.Health.RedisDB,
		})
		defer rdb.Close()
		sinks = append(sinks, health.NewRedisSink(rdb, cfg.Health.RedisKey, cfg.Health.RedisTTL))
	}

	fanout := health.NewFanout(sinks...)
	hostname, _ := os.Hostname()
	healthInfo := core.NewHealthInfo(core.ProductInfo{
		ServiceTitle: cfg.Service.Title,
		MachineName:  hostname,
		Version:      version,
		Endpoint:     cfg.Endpoint(),
	}, fanout, logger.Named("health"))
	healthInfo.SetPublishTimeout(cfg.Health.PublishTimeout)

	printers := printer.NewClient(cfg.Printers, logger.Named("printer"))
	pipeline := core.NewPipeline(core.PipelineDeps{
		Source:   source,
		Renderer: render.NewTSPLRenderer(logger.Named("render")),
		Status:   printers,
		Printer:  printers,
		Mailer:   mail.NewSender(cfg.Mail, logger.Named("mail")),
		Health:   healthInfo,
		Audit:    auditSink,
		Logger:   logger.Named("pipeline"),
		WorkDir:  cfg.Service.WorkDir,
	})

	scheduler, err := core.NewScheduler(core.SchedulerConfig{
		Interval:   cfg.PollInterval(),
		Endpoint:   cfg.Endpoint(),
		MaxWorkers: cfg.Dispatch.MaxWorkers,
	}, source, pipeline, healthInfo, auditSink, logger.Named("scheduler"))
	if err != nil {
		return err
	}

	var server *api.Server
	var serverErr <-chan error
	if cfg.Server.Enabled {
		router := api.NewRouter(api.Deps{
			Controller: scheduler,
			Health:     healthInfo,
			Published:  latest,
			Audit:      auditReader,
			Pending:    source,
			Printers:   printers,
			Sinks:      fanout,
			Settings:   cfg,
			Control:    cfg.Control,
			Logger:     logger.Named("api"),
		})
		server = api.NewServer(cfg.Server, router, logger.Named("api"))
		serverErr = server.Start()
	}

	scheduler.Start()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = fmt.Errorf("control API: %w", err)
		}
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("control API shutdown", zap.Error(err))
		}
	}

	workersDone := make(chan struct{})
	go func() {
		scheduler.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers still running at shutdown", zap.Strings("destinations", scheduler.ActiveDestinations()))
	}

	return runErr
}

func newJobSource(ctx context.Context, cfg *config.Config, databases *dbPool, logger *zap.Logger) (core.JobSource, error) {
	switch cfg.JobSource.Kind {
	case config.SourceSQL:
		d, err := databases.open(ctx, db.Config{Driver: cfg.JobSource.Driver, DSN: cfg.JobSource.DSN})
		if err != nil {
			return nil, fmt.Errorf("job source: %w", err)
		}
		return jobsource.NewSQLSource(d, logger.Named("jobsource")), nil
	default:
		return jobsource.NewODataClient(cfg.JobSource.BaseURL, cfg.JobSource.Timeout, logger.Named("jobsource")), nil
	}
}

type auditStore interface {
	core.AuditSink
	Recent(ctx context.Context, limit int) ([]core.AuditEntry, error)
}

func newAudit(ctx context.Context, cfg *config.Config, databases *dbPool, logger *zap.Logger) (core.AuditSink, auditStore, *audit.Pruner, error) {
	if cfg.Audit.DSN == "" {
		ring := audit.NewRing(0)
		return ring, ring, nil, nil
	}
	d, err := databases.open(ctx, db.Config{Driver: cfg.Audit.Driver, DSN: cfg.Audit.DSN})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("audit store: %w", err)
	}
	sink := audit.NewSQLSink(d)
	var pruner *audit.Pruner
	if cfg.Audit.RetentionDays > 0 {
		pruner = audit.NewPruner(d, cfg.Audit.RetentionDays, logger.Named("audit"))
	}
	return sink, sink, pruner, nil
}

// dbPool shares one handle per driver and DSN, so the SQL job source and
// the audit store can point at the same database.
type dbPool struct {
	handles map[db.Config]*db.DB
}

func newDBPool() *dbPool {
	return &dbPool{handles: make(map[db.Config]*db.DB)}
}

func (p *dbPool) open(ctx context.Context, cfg db.Config) (*db.DB, error) {
	if d, ok := p.handles[cfg]; ok {
		return d, nil
	}
	d, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.handles[cfg] = d
	return d, nil
}

func (p *dbPool) closeAll(logger *zap.Logger) {
	for cfg, d := range p.handles {
		if err := d.Close(); err != nil {
			logger.Warn("database close", zap.String("driver", cfg.Driver), zap.Error(err))
		}
	}
}
