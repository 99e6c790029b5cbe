// Package config loads roomstate settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/roomstate/internal/roomversion"
)

// Config holds settings shared by every command. Command line flags
// override these values.
type Config struct {
	DB          string `env:"ROOMSTATE_DB"           envDefault:"roomstate.db"`
	LogLevel    string `env:"ROOMSTATE_LOG_LEVEL"    envDefault:"info"`
	Format      string `env:"ROOMSTATE_FORMAT"       envDefault:"text"`
	RoomVersion string `env:"ROOMSTATE_ROOM_VERSION" envDefault:"6"`
	Rules       string `env:"ROOMSTATE_RULES"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Level parses LogLevel (debug, info, warn or error).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Registry returns a room version registry extended with the versions in
// the Rules file, if one is set.
func (c Config) Registry() (*roomversion.Registry, error) {
	reg := roomversion.NewRegistry()
	if c.Rules == "" {
		return reg, nil
	}
	if err := reg.LoadCUEFile(c.Rules); err != nil {
		return nil, err
	}
	return reg, nil
}
