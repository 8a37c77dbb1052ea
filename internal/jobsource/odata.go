package jobsource

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/core"
)

const (
	pendingPath        = "v_JobOrdersToPrint"
	detailPathFormat   = "v_PrintJobProps(%d)"
	jobStatusPath      = "upd_JobOrderStatus"
	printerStatusPath  = "upd_PrinterStatus"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 64 << 10
)

type jobOrderValue struct {
	ID        int64  `json:"ID"`
	PrinterIP string `json:"PrinterIP"`
	PrinterNo string `json:"PrinterNo"`
	Command   string `json:"Command"`
}

type jobOrdersResponse struct {
	Value []jobOrderValue `json:"value"`
}

type equipmentValue struct {
	Property string `json:"Property"`
	Value    string `json:"Value"`
}

type labelValue struct {
	TypeProperty string `json:"TypeProperty"`
	PropertyCode string `json:"PropertyCode"`
	Value        string `json:"Value"`
}

type jobPropsResponse struct {
	JobOrderID          int64            `json:"JobOrderID"`
	Command             string           `json:"Command"`
	CommandRule         string           `json:"CommandRule"`
	XlFile              string           `json:"XlFile"`
	EquipmentProperties []equipmentValue `json:"EquipmentProperties"`
	LabelProperties     []labelValue     `json:"LabelProperties"`
}

type jobStatusRequest struct {
	JobOrderID int64  `json:"JobOrderID"`
	PrinterIP  string `json:"PrinterIP"`
	Status     string `json:"Status"`
}

type printerStatusRequest struct {
	PrinterNo string `json:"PrinterNo"`
	Status    string `json:"Status"`
}

// ODataClient is the HTTP job source.
type ODataClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewODataClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ODataClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ODataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *ODataClient) FetchPending(ctx context.Context) ([]core.JobOrder, error) {
	var resp jobOrdersResponse
	if err := c.get(ctx, "fetch pending jobs", pendingPath, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.JobOrder, 0, len(resp.Value))
	for _, v := range resp.Value {
		orders = append(orders, core.JobOrder{
			ID:          v.ID,
			Destination: v.PrinterIP,
			PrinterNo:   v.PrinterNo,
			Command:     v.Command,
		})
	}
	return orders, nil
}

func (c *ODataClient) FetchDetail(ctx context.Context, order core.JobOrder) (*core.JobDetail, error) {
	op := fmt.Sprintf("fetch job %d", order.ID)
	var resp jobPropsResponse
	if err := c.get(ctx, op, fmt.Sprintf(detailPathFormat, order.ID), &resp); err != nil {
		return nil, err
	}

	var template []byte
	if resp.XlFile != "" {
		var err error
		template, err = base64.StdEncoding.DecodeString(resp.XlFile)
		if err != nil {
			return nil, &core.TransportError{Op: op, Err: fmt.Errorf("decode template: %w", err)}
		}
	}

	detail := &core.JobDetail{
		JobOrderID:  resp.JobOrderID,
		Command:     core.CommandKind(resp.Command),
		CommandRule: resp.CommandRule,
		Template:    template,
	}
	if detail.JobOrderID == 0 {
		detail.JobOrderID = order.ID
	}
	if detail.Command == "" {
		detail.Command = core.CommandKind(order.Command)
	}
	for _, e := range resp.EquipmentProperties {
		detail.Equipment = append(detail.Equipment, core.EquipmentProperty{Property: e.Property, Value: e.Value})
	}
	for _, l := range resp.LabelProperties {
		detail.Labels = append(detail.Labels, core.LabelProperty{
			TypeProperty: l.TypeProperty,
			PropertyCode: l.PropertyCode,
			Value:        l.Value,
		})
	}
	return detail, nil
}

func (c *ODataClient) ReportStatus(ctx context.Context, jobID int64, destination, status string) error {
	return c.post(ctx, fmt.Sprintf("update job %d status", jobID), jobStatusPath, jobStatusRequest{
		JobOrderID: jobID,
		PrinterIP:  destination,
		Status:     status,
	})
}

func (c *ODataClient) ReportPrinterStatus(ctx context.Context, printerNo, status string) error {
	return c.post(ctx, fmt.Sprintf("update printer %s status", printerNo), printerStatusPath, printerStatusRequest{
		PrinterNo: printerNo,
		Status:    status,
	})
}

func (c *ODataClient) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	return c.do(op, req, out)
}

func (c *ODataClient) post(ctx context.Context, op, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &core.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(op, req, nil)
}

func (c *ODataClient) do(op string, req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &core.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("job source request failed",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode))
		return core.NewTransportError(op, resp.StatusCode, body)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
