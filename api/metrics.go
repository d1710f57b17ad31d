package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dashboardSpanName    = "alcove.dashboard.read"
	dashboardEventName   = "dashboard.read"
	dashboardEventDomain = "alcove"
	dashboardRoute       = "/api/dashboard"
)

// dashboardRequestMetrics instruments the dashboard read path: one span per
// request plus a structured observability.event log entry carrying the same
// attributes, so traces and logs stay correlated by trace_id.
type dashboardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	loadDuration   time.Duration
	encodeDuration time.Duration
	entityCount    int
	errorStage     string
}

func newDashboardRequestMetrics(ctx context.Context, logger *log.Logger) (*dashboardRequestMetrics, context.Context) {
	m := &dashboardRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer("alcove-api/api").Start(ctx, dashboardSpanName)
	m.span = span
	return m, spanCtx
}

func (m *dashboardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *dashboardRequestMetrics) ObserveLoad(d time.Duration) {
	if d > 0 {
		m.loadDuration = d
	}
}

func (m *dashboardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *dashboardRequestMetrics) SetEntityCount(count int) {
	if count < 0 {
		count = 0
	}
	m.entityCount = count
}

func (m *dashboardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the observability.event entry. Call it
// exactly once per request, after the response is written.
func (m *dashboardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", dashboardRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("alcove.dashboard.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("alcove.dashboard.entities", m.entityCount),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("alcove.dashboard.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.loadDuration > 0 {
		attrs = append(attrs, attribute.Float64("alcove.dashboard.load_ms", durationToMillis(m.loadDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("alcove.dashboard.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("alcove.dashboard.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", dashboardEventName),
		attribute.String("event.domain", dashboardEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= 500 {
			description := "dashboard request failed"
			if err != nil {
				description = err.Error()
			}
			m.span.SetStatus(codes.Error, description)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      dashboardEventName,
		"event.domain":    dashboardEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesAsMap(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch {
	case severityNumber >= 17:
		entry.Error("observability.event")
	case severityNumber >= 13:
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps an HTTP status (or error) to OTLP log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesAsMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
