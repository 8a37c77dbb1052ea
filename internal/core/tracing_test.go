package core

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withSpanRecorder(h *harness) *tracetest.SpanRecorder {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h.pipeline.tracer = tp.Tracer("test")
	return sr
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestPipelineSpanPerJob(t *testing.T) {
	h := newHarness(t.TempDir())
	sr := withSpanRecorder(h)
	h.source.details[1] = printDetail(1, "10.0.0.1")
	h.source.details[2] = printDetail(2, "10.0.0.1")

	h.pipeline.Run(context.Background(), "10.0.0.1", []JobOrder{{ID: 1}, {ID: 2}})

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	for i, s := range spans {
		if s.Name() != "labeldispatch.job" {
			t.Errorf("span name = %q", s.Name())
		}
		if v, ok := spanAttr(s, "job.id"); !ok || v.AsInt64() != int64(i+1) {
			t.Errorf("job.id = %v", v.Emit())
		}
		if v, _ := spanAttr(s, "job.state"); v.AsString() != string(JobDone) {
			t.Errorf("job.state = %q, want %q", v.AsString(), JobDone)
		}
		if s.Status().Code == codes.Error {
			t.Errorf("span %d marked as error", i)
		}
	}
}

func TestPipelineSpanRecordsFailure(t *testing.T) {
	h := newHarness(t.TempDir())
	sr := withSpanRecorder(h)
	d := printDetail(7, "10.0.0.7")
	d.Template = nil
	h.source.details[7] = d

	h.pipeline.Run(context.Background(), "10.0.0.7", []JobOrder{{ID: 7}})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want error", spans[0].Status())
	}
	if len(spans[0].Events()) == 0 {
		t.Error("error event not recorded on span")
	}
	if v, _ := spanAttr(spans[0], "job.state"); v.AsString() != string(JobFailed) {
		t.Errorf("job.state = %q", v.AsString())
	}
}
