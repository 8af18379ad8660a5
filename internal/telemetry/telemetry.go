// Package telemetry wires log rotation and OpenTelemetry exporters.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/zhouzirui/language-partner/backend/internal/config"
)

const serviceName = "language-partner"

// Setup tees the standard logger into a rotating file and, when enabled,
// installs global tracer and meter providers. The returned function flushes
// exporters and closes files.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(), error) {
	var closers []func()
	shutdown := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.LogFile != "" {
		logFile, err := rotatingFile(cfg.LogFile, cfg.MaxSizeMB)
		if err != nil {
			return nil, err
		}
		log.SetOutput(io.MultiWriter(os.Stdout, logFile))
		closers = append(closers, func() {
			log.SetOutput(os.Stdout)
			_ = logFile.Close()
		})
	}

	if !cfg.OTelEnabled {
		return shutdown, nil
	}

	otelShutdown, err := initOTel(ctx, cfg)
	if err != nil {
		shutdown()
		return nil, err
	}
	closers = append(closers, otelShutdown)
	return shutdown, nil
}

func rotatingFile(path string, maxSizeMB int) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}, nil
}

func initOTel(ctx context.Context, cfg config.TelemetryConfig) (func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceFile, err := rotatingFile(filepath.Join(cfg.Dir, "traces.log"), cfg.MaxSizeMB)
	if err != nil {
		return nil, err
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile, err := rotatingFile(filepath.Join(cfg.Dir, "metrics.log"), cfg.MaxSizeMB)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	log.Printf("[telemetry] exporting traces and metrics to %s", cfg.Dir)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("[telemetry] shutdown tracer provider: %v", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			log.Printf("[telemetry] shutdown meter provider: %v", err)
		}
		_ = traceFile.Close()
		_ = metricsFile.Close()
	}, nil
}
