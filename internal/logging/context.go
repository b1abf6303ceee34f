package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	appKey ctxKey = iota
	actionKey
	deviceTypeKey
)

// WithApp returns a context with the app name set.
func WithApp(ctx context.Context, app string) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// WithAction returns a context with the action, condition or transform name set.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

// WithDeviceType returns a context with the device type set.
func WithDeviceType(ctx context.Context, deviceType string) context.Context {
	return context.WithValue(ctx, deviceTypeKey, deviceType)
}

// App extracts the app name from the context, or "" if absent.
func App(ctx context.Context) string {
	v, _ := ctx.Value(appKey).(string)
	return v
}

// Action extracts the action name from the context, or "" if absent.
func Action(ctx context.Context) string {
	v, _ := ctx.Value(actionKey).(string)
	return v
}

// DeviceType extracts the device type from the context, or "" if absent.
func DeviceType(ctx context.Context) string {
	v, _ := ctx.Value(deviceTypeKey).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	if v := App(ctx); v != "" {
		out = append(out, slog.String("app", v))
	}
	if v := Action(ctx); v != "" {
		out = append(out, slog.String("action", v))
	}
	if v := DeviceType(ctx); v != "" {
		out = append(out, slog.String("device_type", v))
	}
	return out
}

// LogWith returns a logger enriched with correlation attributes from the
// context. Only non-empty values are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// OrDefault returns logger, or slog.Default() when logger is nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation attributes from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.WarnContext(ctx, ...) and the app and action appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
