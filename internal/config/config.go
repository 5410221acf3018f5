// Package config loads hostconsole settings from defaults, an optional TOML
// file, HOSTCONSOLE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Setting keys.
const (
	KeyCommandTimeout   = "console.command_timeout"
	KeyReapInterval     = "console.reap_interval"
	KeyDispatchFunction = "console.dispatch_function"
	KeyFrameInterval    = "host.frame_interval"
	KeyStartPhase       = "host.start_phase"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyMetricsEnabled   = "metrics.enabled"
	KeyMetricsAddr      = "metrics.addr"
)

const (
	// EnvPrefix prefixes environment overrides, e.g.
	// HOSTCONSOLE_CONSOLE_COMMAND_TIMEOUT.
	EnvPrefix = "HOSTCONSOLE"

	configName = "hostconsole"
	configType = "toml"
)

// Config is the full hostconsole configuration.
type Config struct {
	Console ConsoleConfig `mapstructure:"console"`
	Host    HostConfig    `mapstructure:"host"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ConsoleConfig configures the command queue.
type ConsoleConfig struct {
	CommandTimeout   time.Duration `mapstructure:"command_timeout"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
	DispatchFunction string        `mapstructure:"dispatch_function"`
}

// HostConfig configures the Lua host.
type HostConfig struct {
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	StartPhase    string        `mapstructure:"start_phase"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures Prometheus metrics. Addr, when set, is where the
// run command serves /metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Console: ConsoleConfig{
			CommandTimeout:   3 * time.Second,
			ReapInterval:     time.Second,
			DispatchFunction: "Console_ExecuteCommand",
		},
		Host: HostConfig{
			FrameInterval: 16 * time.Millisecond,
			StartPhase:    "p100",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// SetDefaults registers Default() with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyCommandTimeout, d.Console.CommandTimeout)
	v.SetDefault(KeyReapInterval, d.Console.ReapInterval)
	v.SetDefault(KeyDispatchFunction, d.Console.DispatchFunction)
	v.SetDefault(KeyFrameInterval, d.Host.FrameInterval)
	v.SetDefault(KeyStartPhase, d.Host.StartPhase)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyMetricsEnabled, d.Metrics.Enabled)
	v.SetDefault(KeyMetricsAddr, d.Metrics.Addr)
}

// Load reads the configuration through v, which may already carry flag
// bindings. With file empty, hostconsole.toml is looked up in the working
// directory and the user config directory, and a missing file is not an
// error.
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ParseError{Path: file, Err: err}
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, &ParseError{Path: v.ConfigFileUsed(), Err: err}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every setting and joins the failures.
func (c Config) Validate() error {
	var errs []error
	positive := func(key string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, &ValidationError{Key: key, Message: "must be positive", Value: d})
		}
	}
	positive(KeyCommandTimeout, c.Console.CommandTimeout)
	positive(KeyReapInterval, c.Console.ReapInterval)
	positive(KeyFrameInterval, c.Host.FrameInterval)

	if strings.TrimSpace(c.Console.DispatchFunction) == "" {
		errs = append(errs, &ValidationError{Key: KeyDispatchFunction, Message: "must not be empty", Value: c.Console.DispatchFunction})
	}
	if strings.TrimSpace(c.Host.StartPhase) == "" {
		errs = append(errs, &ValidationError{Key: KeyStartPhase, Message: "must not be empty", Value: c.Host.StartPhase})
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, &ValidationError{Key: KeyLogFormat, Message: "must be console or json", Value: c.Log.Format})
	}
	return errors.Join(errs...)
}

// fileConfig is the on-disk shape, with durations as strings.
type fileConfig struct {
	Console struct {
		CommandTimeout   string `toml:"command_timeout"`
		ReapInterval     string `toml:"reap_interval"`
		DispatchFunction string `toml:"dispatch_function"`
	} `toml:"console"`
	Host struct {
		FrameInterval string `toml:"frame_interval"`
		StartPhase    string `toml:"start_phase"`
	} `toml:"host"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr,omitempty"`
	} `toml:"metrics"`
}

// TOML renders c in the format Load reads.
func (c Config) TOML() ([]byte, error) {
	var f fileConfig
	f.Console.CommandTimeout = c.Console.CommandTimeout.String()
	f.Console.ReapInterval = c.Console.ReapInterval.String()
	f.Console.DispatchFunction = c.Console.DispatchFunction
	f.Host.FrameInterval = c.Host.FrameInterval.String()
	f.Host.StartPhase = c.Host.StartPhase
	f.Log.Level = c.Log.Level
	f.Log.Format = c.Log.Format
	f.Metrics.Enabled = c.Metrics.Enabled
	f.Metrics.Addr = c.Metrics.Addr

	out, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
