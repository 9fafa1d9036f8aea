// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package config loads the configuration of the gateway daemon.
//
// Configuration is read from a single YAML file.
// Values missing from the file keep their defaults and the result is
// validated before use.
package config // import "mellium.im/gateway/config"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"mellium.im/xmpp/jid"

	"mellium.im/gateway/account"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Environments accepted by Log.Env.
const (
	Development = "development"
	Production  = "production"
)

// Config is the configuration of the gateway daemon.
type Config struct {
	Component ComponentConfig `yaml:"component"`
	Database  DatabaseConfig  `yaml:"database"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ComponentConfig configures the connection to the XMPP server.
type ComponentConfig struct {
	// JID is the address of the component, eg. "gateway.example.net".
	JID string `yaml:"jid"`

	// Server is the host:port of the component listener of the server.
	Server string `yaml:"server"`

	// Secret is the shared secret used in the component handshake.
	Secret string `yaml:"secret"`
}

// DatabaseConfig selects the account store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// GatewayConfig configures the gateway engine.
type GatewayConfig struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Kind     string `yaml:"kind"`

	// MOTD is sent once to every user the first time they come online.
	MOTD string `yaml:"motd"`

	// TickInterval is the time between two runs of the account feeders.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SessionsConfig configures where ad-hoc command sessions are kept.
// If RedisAddr is empty sessions are kept in memory.
type SessionsConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Env is "development" or "production".
	Env string `yaml:"env"`

	// Level is a zap level name such as "debug" or "info".
	// If empty the default level of the environment is used.
	Level string `yaml:"level"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the metrics server.
	// If empty metrics are not served.
	Addr string `yaml:"addr"`

	// Path is the HTTP path metrics are served on.
	Path string `yaml:"path"`
}

// Default returns the configuration used for values missing from the file.
func Default() *Config {
	return &Config{
		Component: ComponentConfig{
			Server: "localhost:5347",
		},
		Database: DatabaseConfig{
			Driver: account.DriverSQLite,
			DSN:    "file:gateway.db",
		},
		Gateway: GatewayConfig{
			Name:         "Gateway",
			Category:     "gateway",
			Kind:         "xmpp",
			TickInterval: time.Minute,
		},
		Sessions: SessionsConfig{
			Prefix: "gateway:command",
			TTL:    30 * time.Minute,
		},
		Log: LogConfig{
			Env: Production,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML configuration over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode is like Parse except that the result is not validated.
// Unknown keys are still rejected.
func Decode(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, nil
}

func invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, a...)...)
}

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	if c.Component.JID == "" {
		return invalid("component.jid is required")
	}
	j, err := jid.Parse(c.Component.JID)
	if err != nil {
		return invalid("component.jid: %v", err)
	}
	if j.Localpart() != "" || j.Resourcepart() != "" {
		return invalid("component.jid must be a bare domain, got %q", c.Component.JID)
	}
	if _, _, err = net.SplitHostPort(c.Component.Server); err != nil {
		return invalid("component.server: %v", err)
	}

	switch c.Database.Driver {
	case account.DriverSQLite, account.DriverPostgres:
	default:
		return invalid("database.driver must be %q or %q, got %q", account.DriverSQLite, account.DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return invalid("database.dsn is required")
	}

	if c.Gateway.TickInterval <= 0 {
		return invalid("gateway.tick_interval must be positive")
	}
	if c.Sessions.TTL <= 0 {
		return invalid("sessions.ttl must be positive")
	}

	switch c.Log.Env {
	case Development, Production:
	default:
		return invalid("log.env must be %q or %q, got %q", Development, Production, c.Log.Env)
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	return nil
}
