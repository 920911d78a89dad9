package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level name: DEBUG, INFO, WARN, ERROR.
	Level string
	// ServiceName identifies this process in exported logs.
	ServiceName string
	// OTELEnabled routes logs through the OTLP gRPC exporter instead of
	// the JSON handler. Exporter endpoint and credentials come from the
	// standard OTEL_* environment variables.
	OTELEnabled bool
}

// New builds a structured logger writing JSON to w, or exporting via OTLP
// when configured. The returned shutdown func flushes the exporter; it is a
// no-op for plain JSON logging.
func New(ctx context.Context, cfg Config, w io.Writer) (*slog.Logger, func(context.Context) error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	if !cfg.OTELEnabled {
		handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		return slog.New(handler), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level: level,
		handler: otelslog.NewHandler(
			cfg.ServiceName,
			otelslog.WithLoggerProvider(provider),
		),
	}
	return slog.New(handler), provider.Shutdown, nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// levelHandler applies level filtering in front of the OTel bridge, which
// does not filter on its own.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}
