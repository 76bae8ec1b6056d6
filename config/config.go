// Package config loads recording configuration from YAML files, .env files
// and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSelector is returned for label rules with malformed patterns.
var ErrInvalidSelector = errors.New("invalid selector")

// Config is the recording configuration.
type Config struct {
	// Name is the application name written into artifacts.
	Name string `yaml:"name"`

	Packages  []Package   `yaml:"packages"`
	Labels    []LabelRule `yaml:"labels"`
	Redaction Redaction   `yaml:"redaction"`

	// MaxValueLength caps descriptor values. Zero keeps the default.
	MaxValueLength int `yaml:"max_value_length"`

	Env Env `yaml:"-"`
}

// Package labels every function of a package and its subpackages.
type Package struct {
	Path   string   `yaml:"path"`
	Labels []string `yaml:"labels"`
}

// LabelRule labels the functions matched by glob patterns.
type LabelRule struct {
	Package string   `yaml:"package"`
	Class   string   `yaml:"class"`
	Method  string   `yaml:"method"`
	Labels  []string `yaml:"labels"`
}

// Redaction lists extra sensitive names. Patterns are substrings or
// /regexps/, matched case-insensitively.
type Redaction struct {
	Patterns []string `yaml:"patterns"`

	// ReplaceDefaults drops the built-in sensitive names.
	ReplaceDefaults bool `yaml:"replace_defaults"`
}

// Env holds the settings taken from the environment.
type Env struct {
	OutputDir   string `env:"APPMAP_OUTPUT_DIR,default=tmp/appmap"`
	MonitorPort int    `env:"APPMAP_MONITOR_PORT,default=0"`
	Record      bool   `env:"APPMAP_RECORD,default=false"`
	Database    string `env:"APPMAP_DATABASE"`
}

// Parse reads a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Load reads the configuration file at path. A .env file next to it is
// loaded into the environment first, without overriding variables that are
// already set, and APPMAP_* variables are then applied.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	if err := envconfig.Process(ctx, &cfg.Env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given. APPMAP_*
// variables still apply.
func Default(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, &cfg.Env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}
