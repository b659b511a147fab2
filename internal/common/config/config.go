// Package config provides configuration management for driverd.
// It supports loading configuration from command-line flags, environment
// variables, a config file, and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration sections for driverd.
type Config struct {
	// Namespace is the namespace the controller runs jobs in.
	Namespace string        `mapstructure:"namespace"`
	Server    ServerConfig  `mapstructure:"server"`
	Driver    DriverConfig  `mapstructure:"driver"`
	Tracing   TracingConfig `mapstructure:"tracing"`
	Logging   LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP control surface configuration.
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"readTimeout"`    // in seconds
	WriteTimeout   int    `mapstructure:"writeTimeout"`   // in seconds
	SessionTimeout int    `mapstructure:"sessionTimeout"` // in seconds, bounds one navigate request
}

// DriverConfig describes the supervised WebDriver binary.
type DriverConfig struct {
	BinaryPath   string `mapstructure:"binaryPath"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadyTimeout int    `mapstructure:"readyTimeout"` // in seconds, 0 disables the readiness wait
	StopTimeout  int    `mapstructure:"stopTimeout"`  // in seconds
}

// TracingConfig controls the OpenTelemetry pipeline.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
	Endpoint    string `mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// SessionTimeoutDuration returns the per-request session bound.
func (s *ServerConfig) SessionTimeoutDuration() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// Addr returns the host:port the control surface listens on.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadyTimeoutDuration returns the readiness wait as a time.Duration.
func (d *DriverConfig) ReadyTimeoutDuration() time.Duration {
	return time.Duration(d.ReadyTimeout) * time.Second
}

// StopTimeoutDuration returns the SIGTERM grace period as a time.Duration.
func (d *DriverConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(d.StopTimeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("DRIVERD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("namespace", "meta")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.sessionTimeout", 90)

	// Driver defaults
	v.SetDefault("driver.binaryPath", "/usr/bin/chromedriver")
	v.SetDefault("driver.host", "localhost")
	v.SetDefault("driver.port", 4444)
	v.SetDefault("driver.readyTimeout", 30)
	v.SetDefault("driver.stopTimeout", 5)

	// Tracing defaults
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.serviceName", "driverd")
	v.SetDefault("tracing.endpoint", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// NewFlagSet returns the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("namespace", "n", "meta", "The namespace the controller runs jobs in")
	fs.Bool("jaeger-enabled", true, "Sets whether trace exporting is enabled")
	fs.String("jaeger-service-name", "driverd", "Sets the trace service name")
	fs.String("config", "", "Directory containing config.yaml")
	return fs
}

// Load reads configuration from flags, environment variables, config file, and defaults.
// Environment variables use the prefix DRIVERD_ with snake_case naming.
// Config file should be named config.yaml and placed in the --config directory,
// the current directory, or /etc/driverd/.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("driverd")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadWithFlags(fs)
}

// LoadWithFlags reads configuration using an already parsed flag set.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DRIVERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so keys whose env name differs are bound explicitly.
	_ = v.BindEnv("tracing.enabled", "JAEGER_ENABLED", "DRIVERD_TRACING_ENABLED")
	_ = v.BindEnv("tracing.serviceName", "JAEGER_SERVICE_NAME", "DRIVERD_TRACING_SERVICE_NAME")
	_ = v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "DRIVERD_TRACING_ENDPOINT")
	_ = v.BindEnv("driver.binaryPath", "DRIVERD_DRIVER_BINARY_PATH")
	_ = v.BindEnv("driver.readyTimeout", "DRIVERD_DRIVER_READY_TIMEOUT")
	_ = v.BindEnv("driver.stopTimeout", "DRIVERD_DRIVER_STOP_TIMEOUT")
	_ = v.BindEnv("server.sessionTimeout", "DRIVERD_SERVER_SESSION_TIMEOUT")

	if fs != nil {
		_ = v.BindPFlag("namespace", fs.Lookup("namespace"))
		_ = v.BindPFlag("tracing.enabled", fs.Lookup("jaeger-enabled"))
		_ = v.BindPFlag("tracing.serviceName", fs.Lookup("jaeger-service-name"))
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if fs != nil {
		if dir, err := fs.GetString("config"); err == nil && dir != "" {
			v.AddConfigPath(dir)
		}
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/driverd/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Server.SessionTimeout < 0 {
		errs = append(errs, "server.sessionTimeout must not be negative")
	}

	if cfg.Driver.BinaryPath == "" {
		errs = append(errs, "driver.binaryPath is required")
	}
	if cfg.Driver.Port <= 0 || cfg.Driver.Port > 65535 {
		errs = append(errs, "driver.port must be between 1 and 65535")
	}
	if cfg.Driver.Port == cfg.Server.Port {
		errs = append(errs, "driver.port must differ from server.port")
	}
	if cfg.Driver.ReadyTimeout < 0 {
		errs = append(errs, "driver.readyTimeout must not be negative")
	}
	if cfg.Driver.StopTimeout <= 0 {
		errs = append(errs, "driver.stopTimeout must be positive")
	}

	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errs = append(errs, "tracing.serviceName is required when tracing is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
