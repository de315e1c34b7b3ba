package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spindle/core/worker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `
environment: staging
schema_version: 1.2.0
log:
  level: debug
metrics:
  enabled: false
timeouts:
  stop_seconds: 3
workers:
  render:
    lock_os_thread: false
    stop_policy: discard
    queue_warn_depth: 64
  audio:
    metrics: true
`

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
	if cfg.StopTimeout() != 3*time.Second {
		t.Errorf("Expected 3s stop timeout, got %v", cfg.StopTimeout())
	}
	if len(cfg.WorkerNames()) != 2 {
		t.Fatalf("Expected 2 workers, got %v", cfg.WorkerNames())
	}

	render, err := cfg.WorkerSettings("render")
	if err != nil {
		t.Fatalf("WorkerSettings failed: %v", err)
	}
	if render.LockOSThread || render.StopPolicy != "discard" || !render.Metrics || render.QueueWarnDepth != 64 {
		t.Errorf("Unexpected render settings: %+v", render)
	}
	audio, err := cfg.WorkerSettings("audio")
	if err != nil {
		t.Fatalf("WorkerSettings failed: %v", err)
	}
	if audio != DefaultWorkerSettings() {
		t.Errorf("Expected defaults for audio, got %+v", audio)
	}
	opts, err := render.Options()
	if err != nil || len(opts) != 4 {
		t.Fatalf("Options() = %d options, %v", len(opts), err)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SPINDLE_LOG_LEVEL", "warn")
	t.Setenv("SPINDLE_TIMEOUTS_STOP_SECONDS", "7")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env override 'warn', got %q", cfg.Log.Level)
	}
	if cfg.Timeouts.StopSeconds != 7 {
		t.Errorf("Expected env override 7, got %d", cfg.Timeouts.StopSeconds)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"environment":    "environment: moon\n",
		"schema major":   "schema_version: 2.0.0\n",
		"schema garbage": "schema_version: latest\n",
		"log level":      "log:\n  level: shouty\n",
		"stop timeout":   "timeouts:\n  stop_seconds: 0\n",
		"stop policy":    "workers:\n  w:\n    stop_policy: eventually\n",
		"unknown key":    "workers:\n  w:\n    priority: 3\n",
		"warn depth":     "workers:\n  w:\n    queue_warn_depth: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatal("Expected LoadConfig to fail")
			}
		})
	}
}

func TestGenerateAndSave(t *testing.T) {
	cfg := GenerateDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("generated config is invalid: %v", err)
	}

	path := filepath.Join(t.TempDir(), "generated.yaml")
	if err := SaveGeneratedConfig(cfg, path); err != nil {
		t.Fatalf("SaveGeneratedConfig failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read generated file: %v", err)
	}
	if !strings.Contains(string(data), "stop_policy: drain") {
		t.Errorf("Expected stop_policy in generated file:\n%s", data)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig of generated file failed: %v", err)
	}
	s, err := loaded.WorkerSettings("main")
	if err != nil {
		t.Fatalf("WorkerSettings failed: %v", err)
	}
	if s.StopPolicy != worker.DrainPending.String() {
		t.Errorf("Unexpected stop policy %q", s.StopPolicy)
	}
}

func TestReload_RunsHooks(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	var got []string
	cfg.AddConfigChangeHook(func(next *Config) { got = append(got, next.Log.Level) })

	updated := strings.Replace(sampleConfig, "level: debug", "level: error", 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := cfg.reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	broken := strings.Replace(sampleConfig, "level: debug", "level: nope", 1)
	if err := os.WriteFile(path, []byte(broken), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := cfg.reload(); err == nil {
		t.Fatal("Expected reload of invalid file to fail")
	}

	if len(got) != 1 || got[0] != "error" {
		t.Fatalf("Expected one hook call with 'error', got %v", got)
	}
}
