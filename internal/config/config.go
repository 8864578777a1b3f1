// Package config loads and writes the workspace configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/muster/internal/workspace"
)

// ConfigVersion is the current supported config schema version.
const ConfigVersion = 1

// Config is the parsed .muster/config.toml.
type Config struct {
	Version int `toml:"version"`

	Watchdog WatchdogConfig `toml:"watchdog"`
	Locks    LocksConfig    `toml:"locks"`
	Notify   NotifyConfig   `toml:"notify"`
}

// WatchdogConfig tunes the liveness poll loop.
type WatchdogConfig struct {
	CheckIntervalSeconds int `toml:"check_interval_seconds"`
	StallTimeoutMinutes  int `toml:"stall_timeout_minutes"`
	CaptureLines         int `toml:"capture_lines"`
	GracePeriodSeconds   int `toml:"grace_period_seconds"`
}

// LocksConfig tunes the advisory lock manager.
type LocksConfig struct {
	ExpiryMinutes int `toml:"expiry_minutes"`
}

// NotifyConfig configures the outbound notification channel.
type NotifyConfig struct {
	WebhookURL     string `toml:"webhook_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Version: ConfigVersion,
		Watchdog: WatchdogConfig{
			CheckIntervalSeconds: 30,
			StallTimeoutMinutes:  5,
			CaptureLines:         50,
			GracePeriodSeconds:   2,
		},
		Locks: LocksConfig{
			ExpiryMinutes: 10,
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
	}
}

// Path returns the config file location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, workspace.Marker)
}

// Load reads the workspace config, filling unset fields with defaults.
// A missing file yields the defaults without error so read-only commands
// work in a half-initialized workspace.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config uses a supported version and sane values.
func (c *Config) Validate() error {
	if c.Version != ConfigVersion {
		return fmt.Errorf("unsupported config version %d (expected %d)", c.Version, ConfigVersion)
	}
	if c.Watchdog.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("watchdog.check_interval_seconds must be positive")
	}
	if c.Watchdog.StallTimeoutMinutes <= 0 {
		return fmt.Errorf("watchdog.stall_timeout_minutes must be positive")
	}
	if c.Watchdog.CaptureLines <= 0 {
		return fmt.Errorf("watchdog.capture_lines must be positive")
	}
	if c.Locks.ExpiryMinutes <= 0 {
		return fmt.Errorf("locks.expiry_minutes must be positive")
	}
	return nil
}

// CheckInterval returns the watchdog poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Watchdog.CheckIntervalSeconds) * time.Second
}

// StallTimeout returns how long unchanged output counts as a stall.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Watchdog.StallTimeoutMinutes) * time.Minute
}

// GracePeriod returns the wait between interrupt and forced kill.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Watchdog.GracePeriodSeconds) * time.Second
}

// LockExpiry returns the lock staleness window.
func (c *Config) LockExpiry() time.Duration {
	return time.Duration(c.Locks.ExpiryMinutes) * time.Minute
}

// NotifyTimeout returns the per-request webhook timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

// defaultTemplate is written by Init. Comments double as the reference
// docs for each knob.
const defaultTemplate = `# muster workspace configuration
version = 1

[watchdog]
# How often the watchdog sweeps Working agents.
check_interval_seconds = 30
# How long an agent's terminal output may stay unchanged before the agent
# is declared stalled. An agent running a long silent operation (big test
# suite, slow network call) is indistinguishable from a stalled one within
# a single capture window; raise this if your agents go quiet legitimately.
stall_timeout_minutes = 5
# How many trailing lines of terminal output each sweep captures.
capture_lines = 50
# Wait between the interrupt and the forced session kill during recovery.
grace_period_seconds = 2

[locks]
# Locks older than this are considered abandoned and may be reclaimed.
expiry_minutes = 10

[notify]
# Webhook that receives agent_stalled / agent_crashed events as JSON.
# Leave empty to disable notifications.
webhook_url = ""
timeout_seconds = 10
max_retries = 3
`

// Init writes the default config file, failing if one already exists.
func Init(root string) error {
	path := Path(root)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
