package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDestinationBusy = errors.New("destination already has an active worker")
	ErrNoTemplate      = errors.New("excel template is empty")
	ErrPrinterNotReady = errors.New("printer not ready")
)

type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError is a failed call to the job source. Details holds the
// server supplied message when the response carried one; it is not part of
// Error() and is read with ErrorDetails.
type TransportError struct {
	Op         string
	StatusCode int
	Details    string
	Err        error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": http %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError from an HTTP response body,
// pulling error.message out of JSON bodies and keeping the raw text otherwise.
func NewTransportError(op string, statusCode int, body []byte) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: statusCode,
		Details:    extractDetails(body),
	}
}

func extractDetails(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// ErrorDetails returns the structured transport message carried by err, if any.
func ErrorDetails(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Details
	}
	return ""
}

type RoutingError struct {
	JobID     int64
	PrinterNo string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("Printer IP address missing for printer %s.", e.PrinterNo)
}

type TemplateMissingError struct {
	JobID         int64
	FactoryNumber string
}

func (e *TemplateMissingError) Error() string {
	return fmt.Sprintf("Excel template is empty. JobOrderID: %d. FactoryNumber: %s.", e.JobID, e.FactoryNumber)
}

func (e *TemplateMissingError) Unwrap() error { return ErrNoTemplate }

type RenderError struct {
	JobID int64
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render job %d: %v", e.JobID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

type DeliveryError struct {
	JobID  int64
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver job %d to %s: %v", e.JobID, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
