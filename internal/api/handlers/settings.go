package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/config"
)

// SettingsResponse is the effective configuration with credentials left
// out. Passwords, secrets and DSNs only report whether they are set.
type SettingsResponse struct {
	ServiceTitle        string `json:"service_title"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	WorkDir             string `json:"work_dir"`
	MaxWorkers          int    `json:"max_workers"`

	JobSourceKind    string `json:"job_source_kind"`
	JobSourceURL     string `json:"job_source_url,omitempty"`
	JobSourceDriver  string `json:"job_source_driver,omitempty"`
	JobSourceTimeout string `json:"job_source_timeout"`

	PrinterPort       int    `json:"printer_port"`
	ConnectionTimeout string `json:"connection_timeout"`

	SMTPHost          string `json:"smtp_host"`
	SMTPPort          int    `json:"smtp_port"`
	MailFrom          string `json:"mail_from"`
	MailRatePerMinute int    `json:"mail_rate_per_minute"`

	HealthWebhook bool   `json:"health_webhook"`
	HealthRedis   bool   `json:"health_redis"`
	RedisKey      string `json:"redis_key,omitempty"`

	AuditStore         string `json:"audit_store"`
	AuditRetentionDays int    `json:"audit_retention_days"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

type SettingsHandler struct {
	config *config.Config
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsFromConfig(h.config))
}

func settingsFromConfig(cfg *config.Config) SettingsResponse {
	resp := SettingsResponse{
		ServiceTitle:        cfg.Service.Title,
		PollIntervalSeconds: cfg.Service.PollIntervalSeconds,
		WorkDir:             cfg.Service.WorkDir,
		MaxWorkers:          cfg.Dispatch.MaxWorkers,
		JobSourceKind:       cfg.JobSource.Kind,
		JobSourceTimeout:    cfg.JobSource.Timeout.String(),
		PrinterPort:         cfg.Printers.Port,
		ConnectionTimeout:   cfg.Printers.ConnectionTimeout.String(),
		SMTPHost:            cfg.Mail.SMTPHost,
		SMTPPort:            cfg.Mail.SMTPPort,
		MailFrom:            cfg.Mail.From,
		MailRatePerMinute:   cfg.Mail.RatePerMinute,
		HealthWebhook:       cfg.Health.WebhookURL != "",
		HealthRedis:         cfg.Health.RedisAddr != "",
		AuditStore:          "memory",
		LogLevel:            cfg.Logging.Level,
		LogFormat:           cfg.Logging.Format,
	}
	if cfg.JobSource.Kind == config.SourceSQL {
		resp.JobSourceDriver = cfg.JobSource.Driver
	} else {
		resp.JobSourceURL = cfg.JobSource.BaseURL
	}
	if resp.HealthRedis {
		resp.RedisKey = cfg.Health.RedisKey
	}
	if cfg.Audit.DSN != "" {
		resp.AuditStore = cfg.Audit.Driver
		resp.AuditRetentionDays = cfg.Audit.RetentionDays
	}
	return resp
}

func RegisterSettingsRoutes(router *gin.RouterGroup, handler *SettingsHandler) {
	router.GET("/settings", handler.GetSettings)
}
