package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "boardsync/api"
	snapshotSpanName  = "snapshot.request"
	snapshotEventName = "boardsync.snapshot.request"
	snapshotDomain    = "boardsync"
	snapshotRoute     = "/api/boards/:id/snapshot"
)

// snapshotRequestMetrics captures per-request timings for the snapshot
// endpoint and emits them both as a structured log entry and as an
// observability event on the request span.
type snapshotRequestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	fetchDuration   time.Duration
	encodeDuration  time.Duration
	columnsReturned int
	errorStage      string
}

func newSnapshotRequestMetrics(ctx context.Context, logger *log.Logger) (*snapshotRequestMetrics, context.Context) {
	m := &snapshotRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, snapshotSpanName)
	m.span = span
	return m, spanCtx
}

func (m *snapshotRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *snapshotRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *snapshotRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *snapshotRequestMetrics) SetColumnsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.columnsReturned = count
}

func (m *snapshotRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *snapshotRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", snapshotRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("boardsync.snapshot.total_ms", durationToMillis(total)),
		attribute.Int("boardsync.snapshot.columns_returned", m.columnsReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("boardsync.snapshot.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("boardsync.snapshot.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("boardsync.snapshot.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("boardsync.snapshot.error_stage", m.errorStage))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", snapshotEventName),
		attribute.String("event.domain", snapshotDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      snapshotEventName,
		"event.domain":    snapshotDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
