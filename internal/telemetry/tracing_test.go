package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setup(t *testing.T) (*tracetest.SpanRecorder, *observer.ObservedLogs, context.Context, func()) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")

	return recorder, logs, ctx, func() { span.End() }
}

func TestReportEvent(t *testing.T) {
	recorder, logs, ctx, end := setup(t)

	ReportEvent(ctx, "resolved partition",
		attribute.String("partition.name", "data"),
		attribute.Int64("partition.first_lba", 34),
	)
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "resolved partition", spans[0].Events()[0].Name)

	entries := logs.FilterMessage("resolved partition").All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "data", fields["partition.name"])
	assert.Equal(t, int64(34), fields["partition.first_lba"])
}

func TestReportCriticalError(t *testing.T) {
	recorder, logs, ctx, end := setup(t)

	ReportCriticalError(ctx, "failed to create disk", errors.New("disk full"), attribute.Bool("disk.lock", true))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "failed to create disk", spans[0].Status().Description)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["disk.lock"])
}
