package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orrn/labeldispatch/internal/config"
	"github.com/orrn/labeldispatch/internal/core"
)

var (
	ErrNoRecipients  = errors.New("no mail recipients")
	ErrNotConfigured = errors.New("smtp host is not configured")
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender implements core.MailDeliverer over SMTP.
type Sender struct {
	cfg     config.MailConfig
	limiter *rate.Limiter
	send    sendFunc
	logger  *zap.Logger
	now     func() time.Time
}

func NewSender(cfg config.MailConfig, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
		burst = cfg.RatePerMinute
	}
	return &Sender{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		send:    smtp.SendMail,
		logger:  logger,
		now:     time.Now,
	}
}

// ParseRecipients splits a recipient rule on ';' and ',' and keeps the
// addresses that parse.
func ParseRecipients(rule string) ([]string, error) {
	fields := strings.FieldsFunc(rule, func(r rune) bool { return r == ';' || r == ',' })
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		addr, err := mail.ParseAddress(f)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", f, err)
		}
		out = append(out, addr.Address)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func (s *Sender) Mail(ctx context.Context, rule string, artifact *core.Artifact) (bool, error) {
	if s.cfg.SMTPHost == "" {
		return false, ErrNotConfigured
	}
	to, err := ParseRecipients(rule)
	if err != nil {
		return false, err
	}
	msg, err := s.buildMessage(to, artifact)
	if err != nil {
		return false, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("mail throttle: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	if err := s.send(addr, auth, s.cfg.From, to, msg); err != nil {
		return false, fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Info("label mailed",
		zap.Strings("to", to),
		zap.String("attachment", artifact.Name))
	return true, nil
}

func (s *Sender) buildMessage(to []string, artifact *core.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	subject := s.cfg.Subject
	if artifact.Name != "" {
		subject = strings.TrimSpace(subject + " " + artifact.Name)
	}

	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", s.cfg.From)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(textPart, "Label %s attached.\r\n", artifact.Name)

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attachment, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name})},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(attachment, artifact.Data); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64Lines wraps encoded output at 76 characters.
func writeBase64Lines(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
