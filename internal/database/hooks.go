package database

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Hook is called before and after every statement. Implementations must be
// safe for concurrent use; panics are recovered and logged.
type Hook interface {
	BeforeQuery(ctx context.Context, query string, args []any)
	// AfterQuery receives the time spent in the driver and the mapped error.
	AfterQuery(ctx context.Context, query string, args []any, d time.Duration, err error)
}

type hookChain struct {
	hooks  []Hook
	logger *slog.Logger
}

func newHookChain(hooks []Hook, logger *slog.Logger) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered, logger: logger}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c.hooks {
		c.safely(func() { h.BeforeQuery(ctx, query, args) })
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		c.safely(func() { h.AfterQuery(ctx, query, args, d, err) })
	}
}

func (c hookChain) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Error("database: hook panic", slog.Any("panic", r))
		}
	}()
	fn()
}

// LogHookConfig configures the structured logging hook.
type LogHookConfig struct {
	Logger *slog.Logger
	// SlowQueryThreshold logs a warning above this duration. Zero disables it.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters. They carry emails and phone numbers.
	LogArgs bool
}

// NewLogHook returns a Hook that logs every statement through slog.
func NewLogHook(cfg LogHookConfig) Hook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &logHook{cfg: cfg}
}

type logHook struct {
	cfg LogHookConfig
}

func (h *logHook) BeforeQuery(context.Context, string, []any) {}

func (h *logHook) AfterQuery(ctx context.Context, query string, args []any, d time.Duration, err error) {
	attrs := []any{
		slog.String("query", compactQuery(query)),
		slog.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		attrs = append(attrs, slog.Any("args", args))
	}

	switch {
	case err != nil:
		h.cfg.Logger.ErrorContext(ctx, "database: query error", append(attrs, slog.Any("error", err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.cfg.Logger.WarnContext(ctx, "database: slow query", attrs...)
	default:
		h.cfg.Logger.DebugContext(ctx, "database: query", attrs...)
	}
}

// MetricsCollector receives one observation per statement.
type MetricsCollector interface {
	RecordQuery(operation string, d time.Duration, success bool)
}

// NewMetricsHook returns a Hook feeding a MetricsCollector, labelled by the
// statement's leading SQL keyword.
func NewMetricsHook(c MetricsCollector) Hook {
	return &metricsHook{c: c}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeQuery(context.Context, string, []any) {}

func (h *metricsHook) AfterQuery(_ context.Context, query string, _ []any, d time.Duration, err error) {
	h.c.RecordQuery(Operation(query), d, err == nil)
}

// NewTracingHook returns a Hook recording one span per statement. The span is
// back-dated to the statement start because hooks cannot replace the context.
func NewTracingHook(tracer trace.Tracer) Hook {
	return &tracingHook{tracer: tracer}
}

type tracingHook struct{ tracer trace.Tracer }

func (h *tracingHook) BeforeQuery(context.Context, string, []any) {}

func (h *tracingHook) AfterQuery(ctx context.Context, query string, _ []any, d time.Duration, err error) {
	end := time.Now()
	_, span := h.tracer.Start(ctx, "db."+strings.ToLower(Operation(query)),
		trace.WithTimestamp(end.Add(-d)),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", compactQuery(query))),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(end))
}

// Operation returns the upper-cased leading keyword of a statement.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func compactQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}
