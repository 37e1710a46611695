package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := install(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStoreSpan_Success(t *testing.T) {
	rec := newRecorder(t)

	_, span := StartStoreSpan(context.Background(), "sql", "max_time", attribute.String("store.table", "line_summary"))
	RecordQueryMetrics(span, 15*time.Millisecond, 3, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sql.max_time", spans[0].Name())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "line_summary", attrs["store.table"].AsString())
	assert.Equal(t, int64(3), attrs["query.record_count"].AsInt64())
	assert.True(t, attrs["query.success"].AsBool())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestOperationSpan_Error(t *testing.T) {
	rec := newRecorder(t)

	_, span := StartOperationSpan(context.Background(), "dashboard", "A1")
	RecordQueryMetrics(span, time.Millisecond, 0, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "kpi.dashboard", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}
