package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"spindle/core/config"
	"spindle/core/errors"
	"spindle/core/jobs"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("spindle %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestConfigGenerateThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spindle.yaml")

	out := execute(t, "config", "generate", "--output", path)
	if !strings.Contains(out, path) {
		t.Errorf("Expected output to name %s, got %q", path, out)
	}

	out = execute(t, "config", "validate", "--config", path)
	if !strings.Contains(out, "Configuration is valid (1 workers)") {
		t.Errorf("Unexpected validate output %q", out)
	}
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	if !strings.HasPrefix(out, "spindle "+version) {
		t.Errorf("Unexpected version output %q", out)
	}
}

type heartbeatCounter struct {
	mu    sync.Mutex
	beats map[string][]uint64
}

func (c *heartbeatCounter) Handle(ctx context.Context, job jobs.Job) error {
	hb := job.Payload().(Heartbeat)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats[hb.Worker] = append(c.beats[hb.Worker], hb.Beat)
	return nil
}

func TestServe_HeartbeatsUntilCancelled(t *testing.T) {
	cfg := config.GenerateDefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Workers["second"] = map[string]interface{}{"stop_policy": "discard", "lock_os_thread": false}

	counter := &heartbeatCounter{beats: make(map[string][]uint64)}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := serve(ctx, cfg, 10*time.Millisecond, counter); err != nil {
		t.Fatalf("serve returned %v", err)
	}

	counter.mu.Lock()
	defer counter.mu.Unlock()
	for _, name := range []string{"main", "second"} {
		beats := counter.beats[name]
		if len(beats) == 0 {
			t.Fatalf("Expected heartbeats on worker %q", name)
		}
		for i := 1; i < len(beats); i++ {
			if beats[i] <= beats[i-1] {
				t.Fatalf("Heartbeats out of order on %q: %v", name, beats)
			}
		}
	}
}

func TestServe_InvalidInput(t *testing.T) {
	cfg := config.GenerateDefaultConfig()
	cfg.Metrics.Enabled = false

	if err := serve(context.Background(), cfg, 0, heartbeatHandler()); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero tick, got %v", err)
	}

	cfg.Workers = nil
	if err := serve(context.Background(), cfg, time.Second, heartbeatHandler()); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput without workers, got %v", err)
	}
}

func TestHeartbeatHandler_RejectsForeignPayload(t *testing.T) {
	job := jobs.NewJob(context.Background(), HeartbeatJob, "not a heartbeat")
	if err := heartbeatHandler().Handle(context.Background(), job); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
