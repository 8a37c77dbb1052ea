package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/config"
	"github.com/orrn/labeldispatch/internal/core"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrInvalidStatus    = errors.New("invalid status response")
	ErrEmptyArtifact    = errors.New("nothing to print")
)

const (
	defaultTCPPort          = 9100
	statusCommand           = "\x1b!?"
	statusResponseLength    = 4
	defaultReadWriteTimeout = 10 * time.Second
)

// Status strings reported back to the job source. Only core.PrinterStatusOK
// lets a print proceed.
const (
	StatusOffline = "OFFLINE"
	StatusPaused  = "PAUSED"
	StatusBusy    = "BUSY"
)

var printerStateMap = map[byte]string{
	'@': "normal",
	'F': "feeding",
	'P': "paused",
	'E': "error",
	'H': "head_open",
	'S': "standby",
	'L': "label_waiting",
	'I': "idle",
}

var warningMap = map[byte]string{
	'@': "none",
	'A': "paper_low",
	'B': "ribbon_low",
	'C': "paper_and_ribbon_low",
}

var errorMap = map[byte]string{
	'@': "none",
	'A': "head_overheat",
	'B': "motor_overheat",
	'C': "head_and_motor_overheat",
	'D': "head_error",
	'E': "cutter_error",
	'F': "rtc_error",
}

var mediaErrorMap = map[byte]string{
	'@': "none",
	'A': "paper_empty",
	'B': "ribbon_empty",
	'C': "paper_and_ribbon_empty",
	'D': "takeup_reel_full",
	'`': "head_open",
}

type Status struct {
	RawStatus    [4]byte
	PrinterState string
	Warning      string
	Error        string
	MediaError   string
	IsOnline     bool
	CanPrint     bool
	LastChecked  time.Time
}

// Client talks raw TSPL over TCP. Each call opens its own connection, so
// one Client is safe to share across destination workers.
type Client struct {
	port    int
	timeout time.Duration
	logger  *zap.Logger
	dialer  net.Dialer
}

func NewClient(cfg config.PrintersConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	port := cfg.Port
	if port == 0 {
		port = defaultTCPPort
	}
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = defaultReadWriteTimeout
	}
	return &Client{port: port, timeout: timeout, logger: logger}
}

func (c *Client) address(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.port))
}

func (c *Client) connect(ctx context.Context, addr string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.address(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	return conn, nil
}

// CheckStatus queries the printer and decodes its four status bytes.
func (c *Client) CheckStatus(ctx context.Context, addr string) (*Status, error) {
	conn, err := c.connect(ctx, addr)
	if err != nil {
		return &Status{LastChecked: time.Now()}, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(statusCommand)); err != nil {
		return &Status{LastChecked: time.Now()}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	response := make([]byte, statusResponseLength)
	if _, err := io.ReadFull(conn, response); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return &Status{IsOnline: true, LastChecked: time.Now()}, ErrInvalidStatus
		}
		return &Status{LastChecked: time.Now()}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	status := parseStatus(response)
	status.IsOnline = true
	status.LastChecked = time.Now()
	status.CanPrint = status.Error == "none" && status.MediaError == "none" &&
		(status.PrinterState == "normal" || status.PrinterState == "standby" || status.PrinterState == "idle")
	return status, nil
}

func parseStatus(response []byte) *Status {
	status := &Status{
		RawStatus: [4]byte{response[0], response[1], response[2], response[3]},
	}
	status.PrinterState = lookup(printerStateMap, response[0])
	status.Warning = lookup(warningMap, response[1])
	status.Error = lookup(errorMap, response[2])
	status.MediaError = lookup(mediaErrorMap, response[3])
	return status
}

func lookup(m map[byte]string, b byte) string {
	if v, ok := m[b]; ok {
		return v
	}
	return "unknown"
}

// Summary maps a decoded status to the string stored by the job source.
func Summary(status *Status) string {
	switch {
	case status == nil || !status.IsOnline:
		return StatusOffline
	case status.PrinterState == "error" || status.Error != "none":
		return "ERROR:" + status.Error
	case status.MediaError != "none":
		return "MEDIA:" + status.MediaError
	case status.PrinterState == "paused":
		return StatusPaused
	case status.PrinterState == "feeding":
		return StatusBusy
	case status.CanPrint:
		return core.PrinterStatusOK
	default:
		return "STATE:" + status.PrinterState
	}
}

// PrinterStatus implements core.StatusChecker. An unreachable printer is a
// status, not an error: it is reported as OFFLINE.
func (c *Client) PrinterStatus(ctx context.Context, addr, printerNo string) (string, error) {
	status, err := c.CheckStatus(ctx, addr)
	if err != nil {
		c.logger.Warn("printer status check failed",
			zap.String("address", addr),
			zap.String("printer_no", printerNo),
			zap.Error(err))
		if errors.Is(err, ErrConnectionFailed) {
			return StatusOffline, nil
		}
		if errors.Is(err, ErrInvalidStatus) {
			return "ERROR:invalid_status", nil
		}
		return "", err
	}
	return Summary(status), nil
}

// Print implements core.PrintDeliverer by writing the rendered TSPL program.
func (c *Client) Print(ctx context.Context, addr string, artifact *core.Artifact) (bool, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return false, ErrEmptyArtifact
	}
	conn, err := c.connect(ctx, addr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err := conn.Write(artifact.Data); err != nil {
		return false, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	c.logger.Debug("label sent", zap.String("address", addr), zap.Int("bytes", len(artifact.Data)))
	return true, nil
}
