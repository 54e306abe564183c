package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Modules ModulesConfig `mapstructure:"modules" yaml:"modules"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	HTTPPort  int    `mapstructure:"http_port" yaml:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	TimeoutSec     int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxOutputBytes int    `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`
	MaxCallStack   int    `mapstructure:"max_call_stack" yaml:"max_call_stack"`
	MaxFigures     int    `mapstructure:"max_figures" yaml:"max_figures"`
}

// ModulesConfig holds the script module allowlist
type ModulesConfig struct {
	Allowed []string `mapstructure:"allowed" yaml:"allowed"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("sandbox.timeout_sec", 30)
	viper.SetDefault("sandbox.max_output_bytes", 10000)
	viper.SetDefault("sandbox.output_dir", "generated_plots")
	viper.SetDefault("sandbox.max_call_stack", 500)
	viper.SetDefault("sandbox.max_figures", 20)
	viper.SetDefault("modules.allowed", []string{
		"math", "random", "datetime", "json", "re",
		"strings", "collections", "stats", "matrix", "plot",
	})

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got: %d", c.Sandbox.MaxOutputBytes)
	}

	if c.Sandbox.OutputDir == "" {
		return fmt.Errorf("sandbox.output_dir must not be empty")
	}

	if c.Sandbox.MaxCallStack <= 0 {
		return fmt.Errorf("sandbox.max_call_stack must be positive, got: %d", c.Sandbox.MaxCallStack)
	}

	if c.Sandbox.MaxFigures <= 0 {
		return fmt.Errorf("sandbox.max_figures must be positive, got: %d", c.Sandbox.MaxFigures)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// Snapshot renders the effective configuration as YAML, for startup
// logging and diagnostics.
func (c *Config) Snapshot() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render config snapshot: %w", err)
	}
	return string(out), nil
}
