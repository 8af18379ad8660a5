package telemetry

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zhouzirui/language-partner/backend/internal/config"
)

func TestSetupTeesLogToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{LogFile: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Printf("[test] hello rotation")
	shutdown()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[test] hello rotation") {
		t.Fatalf("log line missing from file: %q", data)
	}
}

func TestSetupWithOTel(t *testing.T) {
	dir := t.TempDir()
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		OTelEnabled:    true,
		Dir:            dir,
		MetricInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "probe")
	span.End()
	shutdown()

	if _, err := os.Stat(filepath.Join(dir, "traces.log")); err != nil {
		t.Fatalf("trace file not created: %v", err)
	}
}
