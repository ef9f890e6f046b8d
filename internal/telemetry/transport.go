package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const transportScopeName = "github.com/steveyegge/planner/graph"

// InstrumentedTransport wraps an http.RoundTripper with OTel tracing and
// metrics. Every Graph round trip gets a graph.request span and is counted
// in planner.graph.* metrics.
type InstrumentedTransport struct {
	inner       http.RoundTripper
	tracer      trace.Tracer
	requests    metric.Int64Counter
	dur         metric.Float64Histogram
	errs        metric.Int64Counter
	rateLimited metric.Int64Counter
}

// WrapTransport returns rt decorated with OTel instrumentation.
// When telemetry is disabled, rt is returned as-is.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if !Enabled() {
		return rt
	}
	return newInstrumentedTransport(rt)
}

func newInstrumentedTransport(rt http.RoundTripper) *InstrumentedTransport {
	m := Meter(transportScopeName)
	requests, _ := m.Int64Counter("planner.graph.requests",
		metric.WithDescription("Total Graph HTTP requests sent"),
	)
	dur, _ := m.Float64Histogram("planner.graph.request.duration",
		metric.WithDescription("Graph request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("planner.graph.errors",
		metric.WithDescription("Graph requests that failed or returned a non-2xx status"),
	)
	rateLimited, _ := m.Int64Counter("planner.graph.rate_limited",
		metric.WithDescription("Graph requests answered with 429"),
	)
	return &InstrumentedTransport{
		inner:       rt,
		tracer:      Tracer(transportScopeName),
		requests:    requests,
		dur:         dur,
		errs:        errs,
		rateLimited: rateLimited,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	}
	ctx, span, start := t.op(req.Context(), attrs...)
	defer span.End()

	resp, err := t.inner.RoundTrip(req.WithContext(ctx))
	t.done(ctx, span, start, resp, err, attrs...)
	return resp, err
}

func (t *InstrumentedTransport) op(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := t.tracer.Start(ctx, "graph.request",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	t.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (t *InstrumentedTransport) done(ctx context.Context, span trace.Span, start time.Time, resp *http.Response, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	t.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode == http.StatusTooManyRequests {
		t.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
