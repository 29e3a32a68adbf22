// Package config loads runtime configuration and builds the logger from it.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of one runtime instance
type Config struct {
	Log      Log      `yaml:"log"`
	Registry Registry `yaml:"registry"`
	Stress   Stress   `yaml:"stress"`
}

// Log configures the zap logger
type Log struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

// Registry configures the type registry
type Registry struct {
	// AutoRegister lets type references register unknown types on first use
	AutoRegister bool `yaml:"auto_register"`
}

// Stress configures the ecs-stress driver
type Stress struct {
	Entities   int    `yaml:"entities"`
	Iterations int    `yaml:"iterations"`
	Seed       int64  `yaml:"seed"`
	Template   string `yaml:"template"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Log: Log{
			Level:    "info",
			Encoding: "console",
		},
		Registry: Registry{
			AutoRegister: true,
		},
		Stress: Stress{
			Entities:   10000,
			Iterations: 100,
			Seed:       1,
		},
	}
}

// Load reads a YAML configuration file. Missing keys keep their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads a YAML configuration over the defaults
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds a zap logger from the log configuration
func NewLogger(cfg Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    !cfg.Development,
	}
	return zapConfig.Build()
}
