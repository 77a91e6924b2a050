package observe_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ponderpaw/readalong/internal/observe"
)

func TestLogger_EnrichesWithSpanContext(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	observe.Logger(ctx, base).Info("hello")

	out := buf.String()
	sc := span.SpanContext()
	if want := "trace_id=" + sc.TraceID().String(); !strings.Contains(out, want) {
		t.Errorf("log output %q missing %q", out, want)
	}
	if want := "span_id=" + sc.SpanID().String(); !strings.Contains(out, want) {
		t.Errorf("log output %q missing %q", out, want)
	}
}

func TestLogger_WithoutSpanReturnsBase(t *testing.T) {
	t.Parallel()

	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if got := observe.Logger(context.Background(), base); got != base {
		t.Error("Logger added span attributes with no active span")
	}
}

func TestLogger_NilBaseFallsBackToDefault(t *testing.T) {
	t.Parallel()

	if got := observe.Logger(context.Background(), nil); got == nil {
		t.Fatal("Logger returned nil for nil base")
	}
}
