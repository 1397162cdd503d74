// Package config provides configuration management for allssh.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration structure
type Config struct {
	Hosts       string        `mapstructure:"hosts"`        // host spec (ranges, lists, @groups)
	Groups      string        `mapstructure:"groups"`       // path to the group config resource
	Client      string        `mapstructure:"client"`       // remote-execution client binary
	User        string        `mapstructure:"user"`         // alternate remote user
	Insecure    bool          `mapstructure:"insecure"`     // relax host key checking
	Placeholder string        `mapstructure:"placeholder"`  // hostname placeholder token
	Timeout     time.Duration `mapstructure:"timeout"`      // global run timeout (0 for none)
	OutputDir   string        `mapstructure:"output-dir"`   // per-host output files instead of the terminal
	Output      string        `mapstructure:"output"`       // output format (text, json)
	Order       string        `mapstructure:"order"`        // result order (host, completion)
	KeepOrder   bool          `mapstructure:"keep-order"`   // preserve spec order instead of natural sort
	Dups        bool          `mapstructure:"dups"`         // keep duplicate hosts (disable dedup)
	Pick        int           `mapstructure:"pick"`         // random subset size (0 for all)
	NoWait      bool          `mapstructure:"no-wait"`      // stream results as jobs complete
	ShowCodes   string        `mapstructure:"show-codes"`   // exit code display (auto, always, never)
	ShowTime    bool          `mapstructure:"show-time"`    // show elapsed seconds per job
	Separators  bool          `mapstructure:"separators"`   // force banner separators
	DryRun      bool          `mapstructure:"dry-run"`      // print the plan without spawning
	LogLevel    string        `mapstructure:"log-level"`    // log level (info, error)
	LogFormat   string        `mapstructure:"log-format"`   // log format (json, text)
	Quiet       bool          `mapstructure:"quiet"`        // suppress non-error output
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load reads configuration from all sources (files, env vars)
	Load() (*Config, error)

	// SetDefaults establishes default configuration values
	SetDefaults()

	// Validate ensures configuration values are valid and consistent
	Validate(config *Config) error
}

// ViperManager implements the Manager interface using Viper
type ViperManager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager
func NewManager() Manager {
	return &ViperManager{
		v: viper.New(),
	}
}

// SetDefaults establishes default configuration values
func (m *ViperManager) SetDefaults() {
	// Empty defaults register the keys so environment variables bind
	// during Unmarshal.
	m.v.SetDefault("hosts", "")
	m.v.SetDefault("groups", "")
	m.v.SetDefault("user", "")
	m.v.SetDefault("output-dir", "")
	m.v.SetDefault("insecure", false)
	m.v.SetDefault("client", "ssh")
	m.v.SetDefault("placeholder", "{}")
	m.v.SetDefault("timeout", time.Duration(0)) // No timeout by default
	m.v.SetDefault("output", "text")
	m.v.SetDefault("order", "host")
	m.v.SetDefault("keep-order", false)
	m.v.SetDefault("dups", false)
	m.v.SetDefault("pick", 0)
	m.v.SetDefault("no-wait", false)
	m.v.SetDefault("show-codes", "auto")
	m.v.SetDefault("show-time", false)
	m.v.SetDefault("separators", false)
	m.v.SetDefault("dry-run", false)
	m.v.SetDefault("log-level", "info")
	m.v.SetDefault("log-format", "text")
	m.v.SetDefault("quiet", false)
}

// Load reads configuration from all sources with proper precedence:
// defaults, then config file, then environment.
func (m *ViperManager) Load() (*Config, error) {
	m.SetDefaults()

	m.v.SetConfigName("config")
	m.v.SetConfigType("yaml")

	// Config paths in precedence order (current dir highest)
	m.v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		m.v.AddConfigPath(filepath.Join(homeDir, ".config", "allssh"))
	}
	m.v.AddConfigPath("/etc/allssh/")

	m.v.SetEnvPrefix("ALLSSH")
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	m.v.AutomaticEnv()

	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := m.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Streaming implies completion order unless host order was asked
	// for explicitly, which Validate rejects.
	if config.NoWait && config.Order == "host" && !m.orderExplicit() {
		config.Order = "completion"
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// orderExplicit reports whether the order key was set by the
// environment or the config file rather than left at its default.
func (m *ViperManager) orderExplicit() bool {
	if _, ok := os.LookupEnv("ALLSSH_ORDER"); ok {
		return true
	}
	return m.v.InConfig("order")
}

// Validate ensures configuration values are valid and consistent
func (m *ViperManager) Validate(config *Config) error {
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", config.Timeout)
	}
	if config.Pick < 0 {
		return fmt.Errorf("pick must be non-negative, got %d", config.Pick)
	}
	if config.Client == "" {
		return fmt.Errorf("client binary cannot be empty")
	}

	validOutputs := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validOutputs[config.Output] {
		return fmt.Errorf("invalid output format '%s': must be 'text' or 'json'", config.Output)
	}

	validOrders := map[string]bool{
		"host":       true,
		"completion": true,
	}
	if !validOrders[config.Order] {
		return fmt.Errorf("invalid order '%s': must be 'host' or 'completion'", config.Order)
	}

	validCodes := map[string]bool{
		"auto":   true,
		"always": true,
		"never":  true,
	}
	if !validCodes[config.ShowCodes] {
		return fmt.Errorf("invalid show-codes '%s': must be 'auto', 'always' or 'never'", config.ShowCodes)
	}

	// Streaming cannot reproduce canonical host order, so the
	// combination is rejected before any spawn.
	if config.NoWait && config.Order == "host" {
		return fmt.Errorf("no-wait mode is incompatible with host-order output; use --order completion")
	}

	validLogLevels := map[string]bool{
		"info":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return fmt.Errorf("invalid log level '%s': must be 'info' or 'error'", config.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format '%s': must be 'json' or 'text'", config.LogFormat)
	}

	return nil
}

// GroupsPath returns the group config resource location: the explicit
// setting, the ALLSSH_GROUPS environment variable, or the default path.
// Absence of the file itself is not an error.
func GroupsPath(config *Config) string {
	if config.Groups != "" {
		return config.Groups
	}
	if env := os.Getenv("ALLSSH_GROUPS"); env != "" {
		return env
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "allssh", "groups")
	}
	return ""
}
