package middleware

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hjlabs/hjmcpsse/protocol"
)

const instrumentationName = "github.com/hjlabs/hjmcpsse"

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	version        string
	skipMethods    map[string]bool
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithOTelServiceName sets the service.name attribute.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// WithOTelVersion sets the instrumentation version.
func WithOTelVersion(v string) OTelOption {
	return func(c *otelConfig) {
		c.version = v
	}
}

// WithOTelSkipMethods specifies methods that are not traced.
func WithOTelSkipMethods(methods ...string) OTelOption {
	return func(c *otelConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// OTel returns middleware that opens a server span per request and
// records request count, duration and errors. The global providers are
// used unless overridden.
func OTel(opts ...OTelOption) Middleware {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "hjmcpsse",
		version:        "dev",
		skipMethods:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(cfg.version))
	meter := cfg.meterProvider.Meter(instrumentationName,
		metric.WithInstrumentationVersion(cfg.version))

	requestCounter, _ := meter.Int64Counter(
		"hjmcpsse.requests",
		metric.WithDescription("JSON-RPC requests handled"),
		metric.WithUnit("{request}"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"hjmcpsse.request.duration",
		metric.WithDescription("Duration of JSON-RPC requests"),
		metric.WithUnit("s"),
	)
	errorCounter, _ := meter.Int64Counter(
		"hjmcpsse.errors",
		metric.WithDescription("JSON-RPC requests answered with an error"),
		metric.WithUnit("{error}"),
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if cfg.skipMethods[req.Method] {
				return next(ctx, req)
			}

			attrs := []attribute.KeyValue{
				attribute.String("mcp.method", req.Method),
				attribute.String("service.name", cfg.serviceName),
			}
			if tr := protocol.GetRequestMeta(ctx, protocol.MetaTransport); tr != "" {
				attrs = append(attrs, attribute.String("mcp.transport", tr))
			}

			ctx, span := tracer.Start(ctx, "mcp."+req.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			if sid := protocol.SessionID(ctx); sid != "" {
				span.SetAttributes(attribute.String("mcp.session_id", sid))
			}
			if id := CorrelationIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("mcp.correlation_id", id))
			}

			start := time.Now()
			requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

			resp, err := next(ctx, req)

			requestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))

			var code int
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				var rpcErr *protocol.Error
				if errors.As(err, &rpcErr) {
					code = rpcErr.Code
				} else {
					code = protocol.CodeInternalError
				}
			case resp != nil && resp.Error != nil:
				span.SetStatus(codes.Error, resp.Error.Message)
				code = resp.Error.Code
			default:
				span.SetStatus(codes.Ok, "")
				return resp, err
			}

			span.SetAttributes(attribute.Int("mcp.error_code", code))
			errorCounter.Add(ctx, 1, metric.WithAttributes(
				append(attrs, attribute.Int("mcp.error_code", code))...))
			return resp, err
		}
	}
}

// AddSpanEvent adds an event to the span on ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
