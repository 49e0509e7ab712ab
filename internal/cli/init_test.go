package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"billetera/internal/log"
)

func TestSetupLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger := SetupLogger(log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BILLETERA_TEST_KEY=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BILLETERA_TEST_KEY", "")
	os.Unsetenv("BILLETERA_TEST_KEY")

	LoadEnvFile(path)
	if got := os.Getenv("BILLETERA_TEST_KEY"); got != "from-file" {
		t.Errorf("BILLETERA_TEST_KEY = %q", got)
	}

	// Missing files are ignored.
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "not-a-port")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Errorf("LoadConfig() error = %v", err)
	}

	t.Setenv("PORT", "8081")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DataBackend != "memory" {
		t.Errorf("DataBackend = %q", cfg.DataBackend)
	}
}

func TestRunCleanupTimeout(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf})

	start := time.Now()
	runCleanup(logger, 20*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
	})
	if time.Since(start) > time.Second {
		t.Error("runCleanup should return once the timeout fires")
	}
	if !strings.Contains(buf.String(), "Shutdown timeout reached") {
		t.Errorf("log output = %q", buf.String())
	}

	buf.Reset()
	ran := false
	runCleanup(logger, time.Second, func(context.Context) { ran = true })
	if !ran || !strings.Contains(buf.String(), "Shutdown complete") {
		t.Errorf("cleanup ran=%v log=%q", ran, buf.String())
	}
}
