// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/webgate/internal/policy"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Policy   PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser that renders pages.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// CommandTimeout bounds the synchronous CDP calls made on the dispatch loop.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// PolicyConfig is the navigation policy as it appears in the config file.
// Absent lists stay nil, which the policy engine treats as "not configured".
type PolicyConfig struct {
	AllowedHosts   []string           `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	ForbiddenHosts []string           `mapstructure:"forbidden_hosts" yaml:"forbidden_hosts"`
	MatchMode      string             `mapstructure:"match_mode" yaml:"match_mode"`
	Credential     *policy.Credential `mapstructure:"credential" yaml:"credential"`
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	// Title pins the page title instead of using the engine's.
	Title        string        `mapstructure:"title" yaml:"title"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// ObserverConfig configures where navigation events go besides the log.
type ObserverConfig struct {
	RecordFile  string `mapstructure:"record_file" yaml:"record_file"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Policy converts the file representation into the engine's config.
func (p PolicyConfig) Policy() policy.Config {
	cfg := policy.Config{
		AllowedHosts:   p.AllowedHosts,
		ForbiddenHosts: p.ForbiddenHosts,
		MatchMode:      policy.MatchMode(p.MatchMode),
	}
	if p.Credential != nil && p.Credential.Username != "" {
		c := *p.Credential
		cfg.Credential = &c
	}
	return cfg
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webgate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.command_timeout", "5s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Policy --
	v.SetDefault("policy.match_mode", string(policy.MatchSubstring))

	// -- Session --
	v.SetDefault("session.tick_interval", "100ms")
	v.SetDefault("session.queue_size", 256)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("policy.credential.secret", "WEBGATE_POLICY_CREDENTIAL_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secret if Unmarshal didn't pick it up
	if cfg.Policy.Credential != nil && cfg.Policy.Credential.Secret == "" {
		cfg.Policy.Credential.Secret = os.Getenv("WEBGATE_POLICY_CREDENTIAL_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("session.tick_interval must be a positive duration")
	}
	if c.Session.QueueSize <= 0 {
		return fmt.Errorf("session.queue_size must be a positive integer")
	}
	if c.Browser.CommandTimeout <= 0 {
		return fmt.Errorf("browser.command_timeout must be a positive duration")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the policy section.
func (p *PolicyConfig) Validate() error {
	if p.Credential != nil && p.Credential.Username == "" && p.Credential.Secret != "" {
		return fmt.Errorf("credential.username is required when a secret is set")
	}
	return p.Policy().Validate()
}
