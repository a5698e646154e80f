// Package config manages babeld daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete babeld configuration.
type Config struct {
	RouterID   string            `koanf:"router_id"`
	Management ManagementConfig  `koanf:"management"`
	Metrics    MetricsConfig     `koanf:"metrics"`
	Log        LogConfig         `koanf:"log"`
	Interfaces []InterfaceConfig `koanf:"interfaces"`
	Filters    []FilterConfig    `koanf:"filters"`
	Auth       AuthConfig        `koanf:"auth"`
	DSCP       DSCPConfig        `koanf:"dscp"`
}

// ManagementConfig holds the local control-socket configuration (the
// "babelctl" surface).
type ManagementConfig struct {
	// SocketPath is the Unix domain socket babelctl connects to.
	SocketPath string `koanf:"socket_path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// InterfaceConfig describes one enabled link and the cost/timer/RTT
// parameters the core applies to neighbours discovered on it.
type InterfaceConfig struct {
	Name string `koanf:"name"`

	// Cost is the configured base cost of the interface.
	Cost uint16 `koanf:"cost"`

	// LinkQuality enables ETX-style cost estimation instead of the
	// two-three reachability rule.
	LinkQuality bool `koanf:"link_quality"`

	// HelloInterval, UpdateInterval are in milliseconds on disk and
	// converted to the wire's centisecond encoding at send time.
	HelloIntervalMS  int `koanf:"hello_interval_ms"`
	UpdateIntervalMS int `koanf:"update_interval_ms"`

	// RTTMin, RTTMax are in milliseconds; MaxRTTPenalty is an abstract
	// additive cost unit forming the interface's default RTT profile.
	RTTMinMS      uint32 `koanf:"rtt_min_ms"`
	RTTMaxMS      uint32 `koanf:"rtt_max_ms"`
	MaxRTTPenalty uint32 `koanf:"max_rtt_penalty"`

	BufferSize int `koanf:"buffer_size"`
}

// FilterConfig describes one (match, action) rule loaded into a named
// filter chain ("input", "output", "redistribute", or "install").
type FilterConfig struct {
	Site string `koanf:"site"`

	IfName    string `koanf:"ifname"`
	Prefix    string `koanf:"prefix"`
	PlenGE    int    `koanf:"plen_ge"`
	PlenLE    int    `koanf:"plen_le"`
	SrcPrefix string `koanf:"src_prefix"`
	SrcPlenGE int    `koanf:"src_plen_ge"`
	SrcPlenLE int    `koanf:"src_plen_le"`
	TOS       string `koanf:"tos"`
	Neighbour string `koanf:"neighbour"`

	Action    string `koanf:"action"`
	AddMetric uint16 `koanf:"add_metric"`
}

// AuthConfig describes the packet-authentication scheme, if any, applied
// to outgoing and required on incoming TLVs.
type AuthConfig struct {
	// Type is "none", "hmac-sha256", or "hmac-blake2s128".
	Type string `koanf:"type"`
	// KeyID identifies which key an authenticated packet was signed
	// with, allowing overlapping key rollover.
	KeyID string `koanf:"key_id"`
	// Key is the shared secret, hex-encoded.
	Key string `koanf:"key"`
}

// DSCPConfig lists which DSCP classes get source/TOS-qualified route
// entries of their own; codepoints not listed fall back to DefaultTOS.
type DSCPConfig struct {
	Enabled []string `koanf:"enabled"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with defaults for the
// management socket, metrics endpoint, logging, and auth type; it
// defines no interfaces, so no interval or cost defaults are set here.
func DefaultConfig() *Config {
	return &Config{
		Management: ManagementConfig{
			SocketPath: "/var/run/babeld/control.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Type: "none",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for babeld configuration.
// Variables are named BABELD_<section>_<key>, e.g. BABELD_METRICS_ADDR.
const envPrefix = "BABELD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (BABELD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms BABELD_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"management.socket_path": defaults.Management.SocketPath,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"auth.type":              defaults.Auth.Type,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrEmptySocketPath     = errors.New("management.socket_path must not be empty")
	ErrInvalidInterface    = errors.New("interface name must not be empty")
	ErrDuplicateInterface  = errors.New("duplicate interface name")
	ErrInvalidFilterSite   = errors.New("filter site must be input, output, redistribute, or install")
	ErrInvalidFilterAction = errors.New("filter action must be allow, deny, or metric")
	ErrInvalidAuthType     = errors.New("auth.type must be none, hmac-sha256, or hmac-blake2s128")
	ErrMissingAuthKey      = errors.New("auth.key must be set when auth.type is not none")
)

// ValidFilterSites lists the recognized filter site strings.
var ValidFilterSites = map[string]bool{
	"input": true, "output": true, "redistribute": true, "install": true,
}

// ValidFilterActions lists the recognized filter action strings.
var ValidFilterActions = map[string]bool{
	"allow": true, "deny": true, "metric": true,
}

// ValidAuthTypes lists the recognized authentication scheme strings.
var ValidAuthTypes = map[string]bool{
	"none": true, "hmac-sha256": true, "hmac-blake2s128": true,
}

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Management.SocketPath == "" {
		return ErrEmptySocketPath
	}

	seen := make(map[string]struct{}, len(cfg.Interfaces))
	for i, ifc := range cfg.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("interfaces[%d]: %w", i, ErrInvalidInterface)
		}
		if _, dup := seen[ifc.Name]; dup {
			return fmt.Errorf("interfaces[%d] %q: %w", i, ifc.Name, ErrDuplicateInterface)
		}
		seen[ifc.Name] = struct{}{}
	}

	for i, f := range cfg.Filters {
		if !ValidFilterSites[f.Site] {
			return fmt.Errorf("filters[%d] site %q: %w", i, f.Site, ErrInvalidFilterSite)
		}
		if !ValidFilterActions[f.Action] {
			return fmt.Errorf("filters[%d] action %q: %w", i, f.Action, ErrInvalidFilterAction)
		}
	}

	if !ValidAuthTypes[cfg.Auth.Type] {
		return fmt.Errorf("auth.type %q: %w", cfg.Auth.Type, ErrInvalidAuthType)
	}
	if cfg.Auth.Type != "none" && cfg.Auth.Key == "" {
		return ErrMissingAuthKey
	}

	return nil
}

// -------------------------------------------------------------------------
// Reload — SIGHUP parse-result codes
// -------------------------------------------------------------------------

// ParseResult classifies the outcome of a configuration reload, mirroring
// babeld's parse_config_from_string return codes so a SIGHUP handler can
// tell "apply this" apart from "just dump state" without inspecting errors.
type ParseResult int

const (
	// ResultDone indicates the file parsed and validated; the returned
	// Config should be applied.
	ResultDone ParseResult = iota
	// ResultNo indicates the file failed to parse or validate; the
	// previous configuration remains in effect.
	ResultNo
	// ResultQuit indicates the configuration asked the daemon to exit
	// (reserved for a future "quit" directive; Reload never returns it
	// today since no source sets it).
	ResultQuit
	// ResultDump indicates a request to dump current state without
	// reloading configuration (reserved for a future "dump" directive).
	ResultDump
	// ResultMonitor indicates a request to start monitoring a resource
	// (reserved for a future "monitor" directive).
	ResultMonitor
	// ResultUnmonitor is ResultMonitor's counterpart.
	ResultUnmonitor
)

// String renders r for logging.
func (r ParseResult) String() string {
	switch r {
	case ResultDone:
		return "done"
	case ResultNo:
		return "no"
	case ResultQuit:
		return "quit"
	case ResultDump:
		return "dump"
	case ResultMonitor:
		return "monitor"
	case ResultUnmonitor:
		return "unmonitor"
	default:
		return "unknown"
	}
}

// Reload re-reads path for a SIGHUP-triggered configuration reload. On
// success it returns the new Config and ResultDone. On failure it returns
// a nil Config, ResultNo, and the parse or validation error; the
// caller should keep running with its existing Config in that case.
func Reload(path string) (*Config, ParseResult, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, ResultNo, err
	}
	return cfg, ResultDone, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
