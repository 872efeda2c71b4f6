// Package config loads the kickrunner host configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds the host application's settings.
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker"`
	Frames  FramesConfig  `mapstructure:"frames"`
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// WorkerConfig configures the driven worker.
type WorkerConfig struct {
	Name            string `mapstructure:"name"`
	HistoryCapacity int    `mapstructure:"history_capacity"`
	RecoverPanics   bool   `mapstructure:"recover_panics"`
}

// FramesConfig configures the frame loop that kicks the worker.
type FramesConfig struct {
	IntervalMS int  `mapstructure:"interval_ms"`
	Count      int  `mapstructure:"count"` // 0 runs until cancelled
	WorkMS     int  `mapstructure:"work_ms"`
	WaitEach   bool `mapstructure:"wait_each"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// HTTPConfig configures the control API. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Namespace      string `mapstructure:"namespace"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms"`
}

// Interval returns the frame interval as a duration.
func (f FramesConfig) Interval() time.Duration {
	return time.Duration(f.IntervalMS) * time.Millisecond
}

// Work returns the simulated per-frame work as a duration.
func (f FramesConfig) Work() time.Duration {
	return time.Duration(f.WorkMS) * time.Millisecond
}

// PollInterval returns the snapshot poll interval as a duration.
func (m MetricsConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// Options controls where Load looks for configuration.
type Options struct {
	// File is an explicit config file path. Empty searches the default paths.
	File string

	// OnChange, if set, is called with the reloaded config whenever the file changes.
	OnChange func(*Config)

	// OnError, if set, is called when a changed file is rejected. The
	// previous configuration stays in effect.
	OnError func(error)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.name", "main")
	v.SetDefault("worker.history_capacity", 64)
	v.SetDefault("worker.recover_panics", true)
	v.SetDefault("frames.interval_ms", 16)
	v.SetDefault("frames.count", 0)
	v.SetDefault("frames.work_ms", 10)
	v.SetDefault("frames.wait_each", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("http.addr", "")
	v.SetDefault("metrics.namespace", "kickrunner")
	v.SetDefault("metrics.poll_interval_ms", 1000)
}

// Load reads configuration from file, KICKRUNNER_* environment variables and defaults.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("kickrunner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kickrunner")
	}

	v.SetEnvPrefix("KICKRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.OnChange != nil && v.ConfigFileUsed() != "" {
		reject := func(err error) {
			if opts.OnError != nil {
				opts.OnError(err)
			}
		}
		v.OnConfigChange(func(e fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err != nil {
				reject(fmt.Errorf("reload %s: unmarshal config: %w", e.Name, err))
				return
			}
			if err := next.Validate(); err != nil {
				reject(fmt.Errorf("reload %s: invalid configuration: %w", e.Name, err))
				return
			}
			opts.OnChange(&next)
		})
		v.WatchConfig()
	}

	return &cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Worker.Name == "" {
		errs = append(errs, errors.New("worker.name must not be empty"))
	}
	if c.Worker.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("worker.history_capacity must be >= 1, got %d", c.Worker.HistoryCapacity))
	}
	if c.Frames.IntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("frames.interval_ms must be > 0, got %d", c.Frames.IntervalMS))
	}
	if c.Frames.Count < 0 {
		errs = append(errs, fmt.Errorf("frames.count must be >= 0, got %d", c.Frames.Count))
	}
	if c.Frames.WorkMS < 0 {
		errs = append(errs, fmt.Errorf("frames.work_ms must be >= 0, got %d", c.Frames.WorkMS))
	}
	if c.Metrics.PollIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval_ms must be > 0, got %d", c.Metrics.PollIntervalMS))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}
