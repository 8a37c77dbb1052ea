package core

import (
	"errors"
	"testing"
)

func TestJobDetailProperties(t *testing.T) {
	d := &JobDetail{
		Equipment: []EquipmentProperty{
			{Property: PropPrinterIP, Value: "10.0.0.1"},
			{Property: PropPrinterIP, Value: "10.0.0.9"},
			{Property: PropPrinterNo, Value: "7"},
		},
		Labels: []LabelProperty{
			{TypeProperty: "FactoryNumber", PropertyCode: "FactoryNumber", Value: "A1"},
			{TypeProperty: "FactoryNumber", PropertyCode: "FactoryNumber", Value: "B2"},
			{TypeProperty: "Weight", PropertyCode: "Net", Value: "12.5"},
		},
	}

	if got := d.IPAddress(); got != "10.0.0.1" {
		t.Errorf("IPAddress() = %q, want first match 10.0.0.1", got)
	}
	if got := d.PrinterNo(); got != "7" {
		t.Errorf("PrinterNo() = %q", got)
	}
	if got := d.PaperWidth(); got != "" {
		t.Errorf("PaperWidth() = %q, want empty", got)
	}
	if got := d.FactoryNumber(); got != "A1" {
		t.Errorf("FactoryNumber() = %q, want A1", got)
	}
	if got := d.LabelParameter("Weight", "Gross"); got != "" {
		t.Errorf("missing label parameter = %q, want empty", got)
	}
}

func TestHasTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template []byte
		want     bool
	}{
		{"nil", nil, false},
		{"empty", []byte{}, false},
		{"present", []byte("x"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &JobDetail{Template: tt.template}
			if got := d.HasTemplate(); got != tt.want {
				t.Errorf("HasTemplate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGroupByDestination(t *testing.T) {
	orders := []JobOrder{
		{ID: 9, Destination: "10.0.0.2"},
		{ID: 3, Destination: "10.0.0.1"},
		{ID: 5, Destination: ""},
		{ID: 1, Destination: "10.0.0.2"},
		{ID: 2, Destination: "10.0.0.1"},
	}

	batches := GroupByDestination(orders)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}

	want := map[string][]int64{
		"":         {5},
		"10.0.0.1": {2, 3},
		"10.0.0.2": {1, 9},
	}
	for _, b := range batches {
		ids := make([]int64, 0, len(b.Jobs))
		for _, j := range b.Jobs {
			ids = append(ids, j.ID)
		}
		exp := want[b.Destination]
		if len(ids) != len(exp) {
			t.Fatalf("destination %q: ids %v, want %v", b.Destination, ids, exp)
		}
		for i := range ids {
			if ids[i] != exp[i] {
				t.Errorf("destination %q: ids %v, want %v", b.Destination, ids, exp)
			}
		}
	}
}

func TestTransportErrorDetails(t *testing.T) {
	err := NewTransportError("fetch pending", 500, []byte(`{"error":{"code":"","message":"The query failed"}}`))
	if got := ErrorDetails(err); got != "The query failed" {
		t.Errorf("ErrorDetails() = %q", got)
	}

	raw := NewTransportError("fetch pending", 502, []byte("Bad Gateway\n"))
	if got := ErrorDetails(raw); got != "Bad Gateway" {
		t.Errorf("ErrorDetails(raw) = %q", got)
	}

	if got := ErrorDetails(errors.New("plain")); got != "" {
		t.Errorf("ErrorDetails(plain) = %q, want empty", got)
	}
}

func TestTemplateMissingErrorIsNoTemplate(t *testing.T) {
	err := error(&TemplateMissingError{JobID: 4, FactoryNumber: "F"})
	if !errors.Is(err, ErrNoTemplate) {
		t.Error("TemplateMissingError should match ErrNoTemplate")
	}
}
