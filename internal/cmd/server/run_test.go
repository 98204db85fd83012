package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/fleetworks/allocd/internal/config"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	_ = os.Setenv("ALLOCD_TEST_VAR", "env_value")
	t.Cleanup(func() { _ = os.Unsetenv("ALLOCD_TEST_VAR") })
	if got := getenvDefault("ALLOCD_TEST_VAR", "default"); got != "env_value" {
		t.Fatalf("got %q", got)
	}
	if got := getenvDefault("ALLOCD_TEST_VAR_UNSET", "default"); got != "default" {
		t.Fatalf("got %q", got)
	}
}

func TestDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Fatal("DataDir should be set after fallback")
	}
	storeDir := filepath.Join(opts.DataDir, "store")
	if filepath.Base(storeDir) != "store" {
		t.Fatalf("unexpected store dir: %s", storeDir)
	}
}

// TestRunIntegration starts the full server briefly and lets the timeout
// shut it down.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.MonitorIntervalMs = 10
	opts := Options{
		DataDir:  t.TempDir(),
		HTTPAddr: ":0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, opts); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Fatalf("run: %v", err)
	}
}
