package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/labeldispatch/internal/config"
	"github.com/orrn/labeldispatch/internal/core"
	"github.com/orrn/labeldispatch/internal/printer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (f *fakeController) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeController) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeController) ActiveDestinations() []string { return []string{"10.0.0.1"} }

type fakeHealth struct{ snap core.HealthSnapshot }

func (f fakeHealth) Snapshot() core.HealthSnapshot { return f.snap }

type fakePublished struct {
	snap core.HealthSnapshot
	ok   bool
}

func (f fakePublished) Get() (core.HealthSnapshot, bool) { return f.snap, f.ok }

type fakeAudit struct{}

func (fakeAudit) Recent(ctx context.Context, limit int) ([]core.AuditEntry, error) {
	return []core.AuditEntry{{ID: 1, Message: "Print service has been started", Severity: core.SeverityInfo, Category: core.CategoryStart}}, nil
}

type fakePending struct{}

func (fakePending) FetchPending(ctx context.Context) ([]core.JobOrder, error) {
	return []core.JobOrder{
		{ID: 9, Destination: "10.0.0.2", Command: "Print"},
		{ID: 4, Destination: "10.0.0.1", Command: "Print"},
		{ID: 3, Destination: "10.0.0.2", Command: "Mail"},
	}, nil
}

type fakePrinters struct {
	mu      sync.Mutex
	printed []string
}

func (p *fakePrinters) CheckStatus(ctx context.Context, addr string) (*printer.Status, error) {
	if addr == "10.0.0.99" {
		return &printer.Status{}, fmt.Errorf("%w: refused", printer.ErrConnectionFailed)
	}
	return &printer.Status{PrinterState: "paused", Warning: "none", Error: "none", MediaError: "none", IsOnline: true}, nil
}

func (p *fakePrinters) Print(ctx context.Context, addr string, a *core.Artifact) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, string(a.Data))
	return true, nil
}

type fakeSinks struct{ err error }

func (f fakeSinks) Publish(ctx context.Context, snap core.HealthSnapshot) error { return f.err }

func newTestRouter(t *testing.T, published fakePublished) (*gin.Engine, *fakeController) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := &fakeController{running: true}
	fakeDevices := &fakePrinters{}
	router := NewRouter(Deps{
		Controller: ctrl,
		Health:     fakeHealth{snap: core.HealthSnapshot{ServiceTitle: "live", StartedAt: time.Now().Add(-time.Minute)}},
		Published:  published,
		Audit:      fakeAudit{},
		Pending:    fakePending{},
		Printers:   fakeDevices,
		Sinks:      fakeSinks{},
		Settings: &config.Config{
			JobSource: config.JobSourceConfig{Kind: config.SourceSQL, Driver: "pgx", DSN: "postgres://u:hunter2@db/jobs"},
			Mail:      config.MailConfig{SMTPHost: "smtp.test", Password: "hunter2"},
			Health:    config.HealthConfig{WebhookURL: "http://hook.test", WebhookSecret: "hunter2"},
		},
		Control: config.ControlConfig{
			Username:     "admin",
			PasswordHash: string(hash),
			JWTSecret:    "test-secret",
			TokenTTL:     time.Hour,
		},
	})
	return router, ctrl
}

func do(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router http.Handler) string {
	t.Helper()
	w := do(router, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"letmein"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login body = %s", w.Body.String())
	}
	return resp.Token
}

func TestHealthzPrefersPublishedSnapshot(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{snap: core.HealthSnapshot{ServiceTitle: "published"}, ok: true})
	w := do(router, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service_title":"published"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}

	router, _ = newTestRouter(t, fakePublished{})
	w = do(router, http.MethodGet, "/healthz", "", "")
	if !strings.Contains(w.Body.String(), `"service_title":"live"`) {
		t.Errorf("healthz fallback = %s", w.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	w := do(router, http.MethodPost, "/api/auth/login", `{"password":"nope"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
	w = do(router, http.MethodPost, "/api/auth/login", `{}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	for _, path := range []string{"/api/status", "/api/audit"} {
		if w := do(router, http.MethodGet, path, "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d", path, w.Code)
		}
		if w := do(router, http.MethodGet, path, "", "garbage"); w.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token = %d", path, w.Code)
		}
	}
}

func TestServiceControl(t *testing.T) {
	router, ctrl := newTestRouter(t, fakePublished{})
	token := login(t, router)

	w := do(router, http.MethodGet, "/api/status", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var status struct {
		Running            bool     `json:"running"`
		ActiveDestinations []string `json:"active_destinations"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &status)
	if !status.Running || len(status.ActiveDestinations) != 1 {
		t.Errorf("status body = %s", w.Body.String())
	}

	if w := do(router, http.MethodPost, "/api/service/stop", "", token); w.Code != http.StatusOK || ctrl.Running() {
		t.Errorf("stop = %d, running=%v", w.Code, ctrl.Running())
	}
	if w := do(router, http.MethodPost, "/api/service/start", "", token); w.Code != http.StatusOK || !ctrl.Running() {
		t.Errorf("start = %d, running=%v", w.Code, ctrl.Running())
	}
	if w := do(router, http.MethodPost, "/api/service/restart", "", token); w.Code != http.StatusOK {
		t.Errorf("restart = %d", w.Code)
	}
	if ctrl.starts != 2 || ctrl.stops != 2 {
		t.Errorf("starts=%d stops=%d, want 2 and 2", ctrl.starts, ctrl.stops)
	}

	w = do(router, http.MethodGet, "/api/audit?limit=5", "", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Print service has been started") {
		t.Errorf("audit = %d %s", w.Code, w.Body.String())
	}
}

func TestControlDisabledWithoutPassword(t *testing.T) {
	router := NewRouter(Deps{
		Controller: &fakeController{},
		Health:     fakeHealth{},
	})
	if w := do(router, http.MethodPost, "/api/auth/login", `{"password":"x"}`, ""); w.Code != http.StatusForbidden {
		t.Errorf("login = %d", w.Code)
	}
	if w := do(router, http.MethodGet, "/api/status", "", "anything"); w.Code != http.StatusForbidden {
		t.Errorf("status = %d", w.Code)
	}
}

func TestPendingQueueGroupsByDestination(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	token := login(t, router)

	w := do(router, http.MethodGet, "/api/jobs/pending", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("pending = %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Total        int `json:"total"`
		Destinations []struct {
			Destination string `json:"destination"`
			Active      bool   `json:"active"`
			Jobs        []struct {
				ID int64 `json:"id"`
			} `json:"jobs"`
		} `json:"destinations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Destinations) != 2 {
		t.Fatalf("body = %s", w.Body.String())
	}
	first, second := resp.Destinations[0], resp.Destinations[1]
	if first.Destination != "10.0.0.1" || !first.Active {
		t.Errorf("first = %+v", first)
	}
	if second.Destination != "10.0.0.2" || second.Active || len(second.Jobs) != 2 || second.Jobs[0].ID != 3 {
		t.Errorf("second = %+v", second)
	}
}

func TestPrinterDiagnostics(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	token := login(t, router)

	w := do(router, http.MethodGet, "/api/printers/10.0.0.5/status", "", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"PAUSED"`) {
		t.Errorf("status = %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/api/printers/10.0.0.99/status", "", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"OFFLINE"`) {
		t.Errorf("offline status = %d %s", w.Code, w.Body.String())
	}

	if w := do(router, http.MethodGet, "/api/printers/not-an-ip/status", "", token); w.Code != http.StatusBadRequest {
		t.Errorf("bad address = %d", w.Code)
	}

	w = do(router, http.MethodPost, "/api/printers/10.0.0.5:9100/test", `{"name":"Line 5"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("test print = %d %s", w.Code, w.Body.String())
	}
}

func TestSettingsHideCredentials(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	token := login(t, router)

	w := do(router, http.MethodGet, "/api/settings", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("settings = %d %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if strings.Contains(body, "hunter2") {
		t.Errorf("settings leak a credential: %s", body)
	}
	for _, want := range []string{`"job_source_driver":"pgx"`, `"smtp_host":"smtp.test"`, `"health_webhook":true`, `"audit_store":"memory"`} {
		if !strings.Contains(body, want) {
			t.Errorf("settings missing %s: %s", want, body)
		}
	}
}

func TestPublishNow(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	token := login(t, router)

	w := do(router, http.MethodPost, "/api/health/publish", "", token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service_title":"live"`) {
		t.Errorf("publish = %d %s", w.Code, w.Body.String())
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	failing := NewRouter(Deps{
		Controller: &fakeController{},
		Health:     fakeHealth{},
		Sinks:      fakeSinks{err: errors.New("webhook returned 500")},
		Control:    config.ControlConfig{PasswordHash: string(hash), JWTSecret: "s"},
	})
	w = do(failing, http.MethodPost, "/api/health/publish", "", login(t, failing))
	if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "webhook returned 500") {
		t.Errorf("failing publish = %d %s", w.Code, w.Body.String())
	}
}

func TestTemplatePreview(t *testing.T) {
	router, _ := newTestRouter(t, fakePublished{})
	token := login(t, router)

	body := `{"schema":{"name":"box","width_mm":50,"height_mm":30,"elements":[{"type":"text","x":5,"y":5,"content":"SN {{Serial}}"}]},"variables":{"Serial":"A-17"}}`
	w := do(router, http.MethodPost, "/api/templates/preview", body, token)
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		TSPL     string   `json:"tspl_content"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.TSPL, `"SN A-17"`) || !strings.Contains(resp.TSPL, "SIZE 50 mm, 30 mm") {
		t.Errorf("tspl = %q", resp.TSPL)
	}
	if len(resp.Warnings) != 1 {
		t.Errorf("warnings = %v, want the gap warning only", resp.Warnings)
	}

	if w := do(router, http.MethodPost, "/api/templates/preview", `{"schema":{"elements":[]}}`, token); w.Code != http.StatusBadRequest {
		t.Errorf("empty schema = %d", w.Code)
	}
}
