package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingTracer installs an in-memory span exporter as the global provider
// for the duration of the test.
func recordingTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog routes slog.Default() into a strings.Builder.
func captureLog(t *testing.T) *strings.Builder {
	t.Helper()
	var buf strings.Builder
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpanRecordsNamedSpan(t *testing.T) {
	exp := recordingTracer(t)

	ctx, span := StartSpan(context.Background(), "session.turn")
	if CorrelationID(ctx) == "" {
		t.Error("span context carries no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "session.turn" {
		t.Fatalf("recorded spans = %+v, want one named session.turn", spans)
	}
}

func TestCorrelationIDWithoutSpanIsEmpty(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty without a span", got)
	}
}

func TestCorrelationIDIsHexTraceID(t *testing.T) {
	_ = recordingTracer(t)

	ctx, span := StartSpan(context.Background(), "id-check")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	for _, c := range cid {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("correlation ID %q is not lowercase hex", cid)
		}
	}
}

func TestLoggerTagsLinesWithSpanIDs(t *testing.T) {
	_ = recordingTracer(t)
	buf := captureLog(t)

	ctx, span := StartSpan(context.Background(), "tagged")
	defer span.End()
	Logger(ctx).Info("during capture")

	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing span tags: %s", out)
	}
}

func TestLoggerWithoutSpanIsUntagged(t *testing.T) {
	buf := captureLog(t)

	Logger(context.Background()).Info("idle")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("untraced log line carries trace_id: %s", buf.String())
	}
}
