// Package config manages goschc daemon configuration using koanf/v2.
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

// Config holds the complete goschc daemon configuration.
type Config struct {
	HTTP     HTTPConfig      `koanf:"http"`
	Metrics  MetricsConfig   `koanf:"metrics"`
	Log      LogConfig       `koanf:"log"`
	Engine   EngineConfig    `koanf:"engine"`
	Contexts []ContextConfig `koanf:"contexts"`
}

// HTTPConfig holds the admin HTTP/JSON API configuration (see
// internal/server).
type HTTPConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
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

// EngineConfig holds the default SCHC engine parameters shared by every
// context unless overridden.
type EngineConfig struct {
	// DefaultRuleIDLength is the fallback Rule ID length in bits, used
	// when a ContextConfig doesn't specify one.
	DefaultRuleIDLength int `koanf:"default_rule_id_length"`

	// MaxPacketSize is a packet size limit in bytes. Validate requires it
	// to be positive; no other component reads it, so packets are not
	// checked against it.
	MaxPacketSize int `koanf:"max_packet_size"`

	// RuleDir is the directory rulestore loads context/rule YAML files
	// from. A relative RuleDir is used as-is, so it resolves against the
	// daemon's working directory, not the config file's directory.
	RuleDir string `koanf:"rule_dir"`
}

// ContextConfig describes a declarative SCHC context from the
// configuration file. Each entry binds an interface/direction scope to a
// parser stack and a rule file.
type ContextConfig struct {
	// ID is the context identifier (schc.Context.ID).
	ID string `koanf:"id"`

	// InterfaceID names the constrained-network interface this context
	// applies to (schc.Context.InterfaceID).
	InterfaceID string `koanf:"interface_id"`

	// Parser names a parser stack ("ipv6-udp-coap", "ipv4-udp", ...).
	// Validate requires it to be set; the daemon builds the context's
	// stack from the rule file's own parser key, not from this field.
	Parser string `koanf:"parser"`

	// RuleFile is the path (relative to RuleDir) to this context's rule
	// YAML file, loaded by internal/rulestore.
	RuleFile string `koanf:"rule_file"`

	// RuleIDLength overrides EngineConfig.DefaultRuleIDLength for this
	// context; zero means "use the default".
	RuleIDLength int `koanf:"rule_id_length"`

	// Tunnel configures an internal/netio.Gateway for this context: raw
	// datagrams read from CaptureAddr are compressed and forwarded to
	// PeerAddr over TunnelAddr, and vice versa. All three must be set
	// together, or none; leaving them empty means this context is only
	// reachable through the admin HTTP API.
	Tunnel TunnelConfig `koanf:"tunnel"`
}

// TunnelConfig describes the UDP endpoints a context's netio.Gateway
// binds to. A zero TunnelConfig means no gateway is started for the
// context.
type TunnelConfig struct {
	// CaptureAddr is the local UDP address raw (uncompressed) datagrams
	// are read from and written back to.
	CaptureAddr string `koanf:"capture_addr"`

	// TunnelAddr is the local UDP address compressed tunnel frames are
	// read from and written to.
	TunnelAddr string `koanf:"tunnel_addr"`

	// PeerAddr is the remote UDP address of the peer gateway compressed
	// tunnel frames are sent to.
	PeerAddr string `koanf:"peer_addr"`
}

// Enabled reports whether every tunnel endpoint is configured.
func (tc TunnelConfig) Enabled() bool {
	return tc.CaptureAddr != "" && tc.TunnelAddr != "" && tc.PeerAddr != ""
}

// empty reports whether no tunnel endpoint is configured.
func (tc TunnelConfig) empty() bool {
	return tc.CaptureAddr == "" && tc.TunnelAddr == "" && tc.PeerAddr == ""
}

// ContextKey returns a unique identifier for the context based on
// (id, interface_id). Used for diffing contexts on SIGHUP reload.
func (cc ContextConfig) ContextKey() string {
	return cc.ID + "|" + cc.InterfaceID
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			DefaultRuleIDLength: 8,
			MaxPacketSize:       1280, // IPv6 minimum MTU (RFC 8200 Section 5)
			RuleDir:             "contexts",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goschc configuration.
// Variables are named GOSCHC_<section>_<key>, e.g., GOSCHC_METRICS_ADDR.
const envPrefix = "GOSCHC_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOSCHC_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOSCHC_HTTP_ADDR    -> http.addr
//	GOSCHC_METRICS_ADDR -> metrics.addr
//	GOSCHC_METRICS_PATH -> metrics.path
//	GOSCHC_LOG_LEVEL    -> log.level
//	GOSCHC_LOG_FORMAT   -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// GOSCHC_HTTP_ADDR -> http.addr (strip prefix, lowercase, _ -> .).
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

// envKeyMapper transforms GOSCHC_HTTP_ADDR -> http.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"http.addr":                     defaults.HTTP.Addr,
		"metrics.addr":                  defaults.Metrics.Addr,
		"metrics.path":                  defaults.Metrics.Path,
		"log.level":                     defaults.Log.Level,
		"log.format":                    defaults.Log.Format,
		"engine.default_rule_id_length": defaults.Engine.DefaultRuleIDLength,
		"engine.max_packet_size":        defaults.Engine.MaxPacketSize,
		"engine.rule_dir":               defaults.Engine.RuleDir,
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
	// ErrEmptyHTTPAddr indicates the admin HTTP listen address is empty.
	ErrEmptyHTTPAddr = errors.New("http.addr must not be empty")

	// ErrInvalidRuleIDLength indicates the default rule ID length is
	// out of range.
	ErrInvalidRuleIDLength = errors.New("engine.default_rule_id_length must be > 0")

	// ErrInvalidMaxPacketSize indicates the max packet size is zero
	// or negative.
	ErrInvalidMaxPacketSize = errors.New("engine.max_packet_size must be > 0")

	// ErrEmptyContextID indicates a context has no ID.
	ErrEmptyContextID = errors.New("context id must not be empty")

	// ErrEmptyContextParser indicates a context names no parser stack.
	ErrEmptyContextParser = errors.New("context parser must not be empty")

	// ErrEmptyContextRuleFile indicates a context names no rule file.
	ErrEmptyContextRuleFile = errors.New("context rule_file must not be empty")

	// ErrDuplicateContextKey indicates two contexts share the same
	// (id, interface_id) key.
	ErrDuplicateContextKey = errors.New("duplicate context key")

	// ErrIncompleteTunnelConfig indicates a context set only some of
	// tunnel.capture_addr, tunnel.tunnel_addr, tunnel.peer_addr.
	ErrIncompleteTunnelConfig = errors.New("context tunnel config must set capture_addr, tunnel_addr, and peer_addr together")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}

	if cfg.Engine.DefaultRuleIDLength <= 0 {
		return ErrInvalidRuleIDLength
	}

	if cfg.Engine.MaxPacketSize <= 0 {
		return ErrInvalidMaxPacketSize
	}

	if err := validateContexts(cfg.Contexts); err != nil {
		return err
	}

	return nil
}

// validateContexts checks each declarative context entry for correctness.
func validateContexts(contexts []ContextConfig) error {
	seen := make(map[string]struct{}, len(contexts))

	for i, cc := range contexts {
		if cc.ID == "" {
			return fmt.Errorf("contexts[%d]: %w", i, ErrEmptyContextID)
		}
		if cc.Parser == "" {
			return fmt.Errorf("contexts[%d]: %w", i, ErrEmptyContextParser)
		}
		if cc.RuleFile == "" {
			return fmt.Errorf("contexts[%d]: %w", i, ErrEmptyContextRuleFile)
		}
		if !cc.Tunnel.Enabled() && !cc.Tunnel.empty() {
			return fmt.Errorf("contexts[%d]: %w", i, ErrIncompleteTunnelConfig)
		}

		key := cc.ContextKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("contexts[%d] key %q: %w", i, key, ErrDuplicateContextKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
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
