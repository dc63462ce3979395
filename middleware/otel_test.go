package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hjlabs/hjmcpsse/protocol"
)

func newTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exporter
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOTelMiddleware(t *testing.T) {
	t.Run("creates span for request", func(t *testing.T) {
		tp, exporter := newTracer(t)
		handler := OTel(WithTracerProvider(tp))(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		ctx := protocol.SetRequestMeta(context.Background(), protocol.MetaSessionID, "sess-1")
		ctx = protocol.SetRequestMeta(ctx, protocol.MetaTransport, "sse")
		if _, err := handler(ctx, &protocol.Request{ID: json.RawMessage("1"), Method: "tools/list"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}
		span := spans[0]
		if span.Name != "mcp.tools/list" {
			t.Errorf("span name = %q, want %q", span.Name, "mcp.tools/list")
		}
		if v, ok := spanAttr(span.Attributes, "mcp.session_id"); !ok || v.AsString() != "sess-1" {
			t.Errorf("mcp.session_id = %v, want sess-1", v.AsString())
		}
		if v, ok := spanAttr(span.Attributes, "mcp.transport"); !ok || v.AsString() != "sse" {
			t.Errorf("mcp.transport = %v, want sse", v.AsString())
		}
	})

	t.Run("records error on failure", func(t *testing.T) {
		tp, exporter := newTracer(t)
		handler := OTel(WithTracerProvider(tp))(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return nil, errors.New("handler failed")
		})

		if _, err := handler(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "tools/call"}); err == nil {
			t.Fatal("expected error")
		}

		span := exporter.GetSpans()[0]
		if len(span.Events) == 0 {
			t.Error("expected error event on span")
		}
		if v, _ := spanAttr(span.Attributes, "mcp.error_code"); v.AsInt64() != protocol.CodeInternalError {
			t.Errorf("mcp.error_code = %d, want %d", v.AsInt64(), protocol.CodeInternalError)
		}
	})

	t.Run("records error response code", func(t *testing.T) {
		tp, exporter := newTracer(t)
		handler := OTel(WithTracerProvider(tp))(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewErrorResponse(req.ID, protocol.NewRateLimited("slow down")), nil
		})

		_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "tools/call"})

		span := exporter.GetSpans()[0]
		v, ok := spanAttr(span.Attributes, "mcp.error_code")
		if !ok {
			t.Fatal("expected mcp.error_code attribute")
		}
		if v.AsInt64() != protocol.CodeRateLimited {
			t.Errorf("mcp.error_code = %d, want %d", v.AsInt64(), protocol.CodeRateLimited)
		}
	})

	t.Run("skips configured methods", func(t *testing.T) {
		tp, exporter := newTracer(t)
		handler := OTel(WithTracerProvider(tp), WithOTelSkipMethods("ping"))(
			func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				return protocol.NewResponse(req.ID, "ok"), nil
			})

		_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "ping"})
		if n := len(exporter.GetSpans()); n != 0 {
			t.Errorf("expected 0 spans for skipped method, got %d", n)
		}
	})

	t.Run("uses custom service name", func(t *testing.T) {
		tp, exporter := newTracer(t)
		handler := OTel(WithTracerProvider(tp), WithOTelServiceName("calc"))(
			func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				return protocol.NewResponse(req.ID, "ok"), nil
			})

		_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "tools/list"})
		if v, _ := spanAttr(exporter.GetSpans()[0].Attributes, "service.name"); v.AsString() != "calc" {
			t.Errorf("service.name = %q, want %q", v.AsString(), "calc")
		}
	})

	t.Run("uses global providers by default", func(t *testing.T) {
		if OTel() == nil {
			t.Fatal("expected non-nil middleware")
		}
	})
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	handler := OTel(WithMeterProvider(mp))(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		if req.Method == "tools/call" {
			return nil, protocol.NewInvalidParams("bad")
		}
		return protocol.NewResponse(req.ID, "ok"), nil
	})

	_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "tools/list"})
	_, _ = handler(context.Background(), &protocol.Request{ID: json.RawMessage("2"), Method: "tools/call"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	sums := map[string]int64{}
	var histograms int
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histograms += int(dp.Count)
				}
			}
		}
	}

	if sums["hjmcpsse.requests"] != 2 {
		t.Errorf("hjmcpsse.requests = %d, want 2", sums["hjmcpsse.requests"])
	}
	if sums["hjmcpsse.errors"] != 1 {
		t.Errorf("hjmcpsse.errors = %d, want 1", sums["hjmcpsse.errors"])
	}
	if histograms != 2 {
		t.Errorf("duration samples = %d, want 2", histograms)
	}
}

func TestAddSpanEvent(t *testing.T) {
	tp, exporter := newTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")

	AddSpanEvent(ctx, "invocation", attribute.String("name", "calculator"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 || len(spans[0].Events) != 1 {
		t.Fatalf("expected 1 span with 1 event, got %+v", spans)
	}
	if spans[0].Events[0].Name != "invocation" {
		t.Errorf("event name = %q, want %q", spans[0].Events[0].Name, "invocation")
	}
}
