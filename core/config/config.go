package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"spindle/core/worker"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// SupportedSchema is the constraint a config file's schema_version must meet.
const SupportedSchema = "^1.0"

// Config holds the application's configuration settings.
type Config struct {
	Environment   string                            `mapstructure:"environment" yaml:"environment"`
	SchemaVersion string                            `mapstructure:"schema_version" yaml:"schema_version"`
	Log           LogConfig                         `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig                     `mapstructure:"metrics" yaml:"metrics"`
	Timeouts      TimeoutsConfig                    `mapstructure:"timeouts" yaml:"timeouts"`
	Workers       map[string]map[string]interface{} `mapstructure:"workers" yaml:"workers"` // Raw per-worker settings, see WorkerSettings

	v     *viper.Viper
	mu    sync.Mutex
	hooks []func(*Config)
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// TimeoutsConfig holds timeout settings for various operations.
type TimeoutsConfig struct {
	StopSeconds int `mapstructure:"stop_seconds" yaml:"stop_seconds"`
}

// WorkerSettings are the per-worker options accepted under "workers.<name>".
type WorkerSettings struct {
	LockOSThread   bool   `mapstructure:"lock_os_thread" yaml:"lock_os_thread"`
	StopPolicy     string `mapstructure:"stop_policy" yaml:"stop_policy"`
	Metrics        bool   `mapstructure:"metrics" yaml:"metrics"`
	QueueWarnDepth int    `mapstructure:"queue_warn_depth" yaml:"queue_warn_depth"` // 0 disables the warning
}

// DefaultWorkerSettings returns the settings used for keys a worker omits.
func DefaultWorkerSettings() WorkerSettings {
	return WorkerSettings{
		LockOSThread: true,
		StopPolicy:   worker.DrainPending.String(),
		Metrics:      true,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("schema_version", "1.0.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("timeouts.stop_seconds", 10)
}

// LoadConfig loads the configuration from path, or when path is empty from
// config.yaml in ".", "./configs" or "/etc/spindle". Environment variables
// prefixed SPINDLE_ override file values (e.g. SPINDLE_LOG_LEVEL).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/spindle")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SPINDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and proceed with defaults and environment variables
			fmt.Fprintln(os.Stderr, "Config file not found, using defaults and environment variables.")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// AddConfigChangeHook registers a function to be called with the new
// configuration whenever the watched file changes and still validates.
func (c *Config) AddConfigChangeHook(hook func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// WatchConfig starts watching the loaded file for changes. It is a no-op for
// configurations that did not come from LoadConfig.
func (c *Config) WatchConfig() {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if err := c.reload(); err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring config change in %s: %v\n", e.Name, err)
		}
	})
	c.v.WatchConfig()
}

// reload re-reads the file and runs the change hooks with the new values.
// An invalid file leaves the hooks uncalled.
func (c *Config) reload() error {
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config: %w", err)
	}
	next := &Config{v: c.v}
	if err := c.v.Unmarshal(next); err != nil {
		return fmt.Errorf("failed to re-unmarshal config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.mu.Lock()
	hooks := append([]func(*Config){}, c.hooks...)
	c.mu.Unlock()
	for _, hook := range hooks {
		hook(next)
	}
	return nil
}

// StopTimeout returns the time allowed for workers to stop.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Timeouts.StopSeconds) * time.Second
}

// WorkerNames returns the configured worker names.
func (c *Config) WorkerNames() []string {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	return names
}

// WorkerSettings decodes the settings of the named worker over the defaults.
func (c *Config) WorkerSettings(name string) (WorkerSettings, error) {
	s := DefaultWorkerSettings()
	raw, ok := c.Workers[name]
	if !ok || raw == nil {
		return s, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, fmt.Errorf("failed to decode settings for worker %q: %w", name, err)
	}
	return s, nil
}

// Options converts the settings into worker options.
func (s WorkerSettings) Options() ([]worker.Option, error) {
	policy, err := worker.ParseStopPolicy(s.StopPolicy)
	if err != nil {
		return nil, err
	}
	if s.QueueWarnDepth < 0 {
		return nil, fmt.Errorf("queue_warn_depth must not be negative, got %d", s.QueueWarnDepth)
	}
	return []worker.Option{
		worker.WithLockOSThread(s.LockOSThread),
		worker.WithStopPolicy(policy),
		worker.WithMetrics(s.Metrics),
		worker.WithQueueWarnDepth(s.QueueWarnDepth),
	}, nil
}

// GenerateDefaultConfig returns a configuration with one worker and all
// defaults spelled out.
func GenerateDefaultConfig() *Config {
	s := DefaultWorkerSettings()
	return &Config{
		Environment:   "development",
		SchemaVersion: "1.0.0",
		Log:           LogConfig{Level: "info"},
		Metrics:       MetricsConfig{Enabled: true, Address: ":9090"},
		Timeouts:      TimeoutsConfig{StopSeconds: 10},
		Workers: map[string]map[string]interface{}{
			"main": {
				"lock_os_thread":   s.LockOSThread,
				"stop_policy":      s.StopPolicy,
				"metrics":          s.Metrics,
				"queue_warn_depth": s.QueueWarnDepth,
			},
		},
	}
}

// SaveGeneratedConfig saves a generated config to a file
func SaveGeneratedConfig(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(filename, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
		// valid
	default:
		return fmt.Errorf("invalid environment: %q", c.Environment)
	}

	version, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", c.SchemaVersion, err)
	}
	constraint, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("schema_version %s does not satisfy %s", version, SupportedSchema)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Timeouts.StopSeconds <= 0 {
		return fmt.Errorf("timeouts.stop_seconds must be positive, got %d", c.Timeouts.StopSeconds)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}

	for name := range c.Workers {
		s, err := c.WorkerSettings(name)
		if err != nil {
			return err
		}
		if _, err := s.Options(); err != nil {
			return fmt.Errorf("worker %q: %w", name, err)
		}
	}
	return nil
}
