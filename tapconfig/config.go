// Package tapconfig loads the engine's runtime configuration through a
// small stack of layered feeders, each able to overlay values onto a
// Config in turn (file, then environment).
//
// Grounded on the teacher's Feeder interface (config_feeders.go:
// `Feed(structure interface{}) error`, with a ConfigFeeders slice applied
// in order) generalized from the teacher's DI-container feeding model to a
// standalone loader, since this repo has no module registry to feed
// through. The concrete feeders are new, written directly against
// BurntSushi/toml, yaml.v3, and golobby/cast rather than reusing the
// teacher's feeders package, which depended on golobby/config/v3 (not
// otherwise used anywhere in this repo).
package tapconfig

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Config is the engine's runtime configuration.
type Config struct {
	// ListenAddr is the address cmd/tapd's HTTP/SSE gateway binds to.
	ListenAddr string `toml:"listen_addr" yaml:"listenAddr" env:"TAP_LISTEN_ADDR"`

	// HoldTTLMinSec and HoldTTLMaxSec are loaded but not enforced:
	// engine.HoldPlace accepts any positive ttlSec and never reads them.
	HoldTTLMinSec int64 `toml:"hold_ttl_min_sec" yaml:"holdTtlMinSec" env:"TAP_HOLD_TTL_MIN_SEC"`
	HoldTTLMaxSec int64 `toml:"hold_ttl_max_sec" yaml:"holdTtlMaxSec" env:"TAP_HOLD_TTL_MAX_SEC"`

	// HeartbeatSec is the default stream heartbeat interval, clamped to
	// stream.MinHeartbeat/MaxHeartbeat on use.
	HeartbeatSec int64 `toml:"heartbeat_sec" yaml:"heartbeatSec" env:"TAP_HEARTBEAT_SEC"`

	// SnapshotPageSize is loaded but not read by cmd/tapd; a state.snapshot
	// query without a positive pageSize uses snapshot.DefaultPageSize.
	SnapshotPageSize int `toml:"snapshot_page_size" yaml:"snapshotPageSize" env:"TAP_SNAPSHOT_PAGE_SIZE"`

	// CutRetentionSec bounds how long a Cut remains retrievable after being
	// minted (spec.md §4.6). 0 means "derive from HeartbeatSec": 5x the
	// heartbeat interval, the recommended minimum a snapshot+tail handshake
	// needs.
	CutRetentionSec int64 `toml:"cut_retention_sec" yaml:"cutRetentionSec" env:"TAP_CUT_RETENTION_SEC"`

	// SweepIntervalSec is how often the background sweeper scans for
	// lapsed holds. Correctness never depends on this running; it only
	// bounds how promptly hold.released{reason=expired} events are emitted,
	// since the sweep is the only path that emits them.
	SweepIntervalSec int64 `toml:"sweep_interval_sec" yaml:"sweepIntervalSec" env:"TAP_SWEEP_INTERVAL_SEC"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"logLevel" env:"TAP_LOG_LEVEL"`
}

// Default returns a Config with the reference implementation's defaults.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		HoldTTLMinSec:    1,
		HoldTTLMaxSec:    3600,
		HeartbeatSec:     30,
		SnapshotPageSize: 500,
		SweepIntervalSec: 5,
		LogLevel:         "info",
	}
}

// SweepInterval returns SweepIntervalSec as a time.Duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// Heartbeat returns HeartbeatSec as a time.Duration.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}

// CutRetention returns CutRetentionSec as a time.Duration, defaulting to 5x
// the heartbeat interval (spec.md §4.6's recommended minimum) when unset.
func (c Config) CutRetention() time.Duration {
	if c.CutRetentionSec > 0 {
		return time.Duration(c.CutRetentionSec) * time.Second
	}
	return 5 * c.Heartbeat()
}

// Feeder overlays configuration data onto structure, matching the
// teacher's config Feeder contract.
type Feeder interface {
	Feed(structure any) error
}

// TOMLFeeder reads a TOML file at Path into the target structure.
type TOMLFeeder struct {
	Path string
}

func (f TOMLFeeder) Feed(structure any) error {
	if f.Path == "" {
		return nil
	}
	_, err := toml.DecodeFile(f.Path, structure)
	return err
}

// YAMLFeeder reads a YAML file at Path into the target structure.
type YAMLFeeder struct {
	Path string
}

func (f YAMLFeeder) Feed(structure any) error {
	if f.Path == "" {
		return nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, structure)
}

// EnvFeeder overlays environment variables named by each field's `env` tag
// onto a *Config, coercing the string value with golobby/cast.
type EnvFeeder struct{}

func (EnvFeeder) Feed(structure any) error {
	cfg, ok := structure.(*Config)
	if !ok {
		return nil
	}
	if v, ok := lookupEnv("TAP_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := lookupEnvInt64("TAP_HOLD_TTL_MIN_SEC"); ok {
		cfg.HoldTTLMinSec = v
	}
	if v, ok := lookupEnvInt64("TAP_HOLD_TTL_MAX_SEC"); ok {
		cfg.HoldTTLMaxSec = v
	}
	if v, ok := lookupEnvInt64("TAP_HEARTBEAT_SEC"); ok {
		cfg.HeartbeatSec = v
	}
	if v, ok := lookupEnvInt64("TAP_SNAPSHOT_PAGE_SIZE"); ok {
		cfg.SnapshotPageSize = int(v)
	}
	if v, ok := lookupEnvInt64("TAP_CUT_RETENTION_SEC"); ok {
		cfg.CutRetentionSec = v
	}
	if v, ok := lookupEnvInt64("TAP_SWEEP_INTERVAL_SEC"); ok {
		cfg.SweepIntervalSec = v
	}
	if v, ok := lookupEnv("TAP_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func lookupEnvInt64(key string) (int64, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := cast.ToInt64(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Load builds a Config starting from Default() and overlaying each feeder
// in order, so later feeders win (the convention is file defaults first,
// then environment last).
func Load(feeders ...Feeder) (Config, error) {
	cfg := Default()
	for _, f := range feeders {
		if err := f.Feed(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
