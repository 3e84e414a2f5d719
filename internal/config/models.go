package config

import (
	"fmt"
	"regexp"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendAuto   = "auto"
	BackendX11    = "x11"
	BackendMutter = "mutter"
)

// Bounds for CaptureTarget.RetryCount.
const (
	MinRetryCount = 0
	MaxRetryCount = 50
)

// CaptureTarget describes the window a capture source should follow.
type CaptureTarget struct {
	// Source is the name of the window capture input inside OBS.
	Source string `json:"source" yaml:"source"`
	// Executable is the application owning the window. Compared
	// case-insensitively against the window's application name.
	Executable string `json:"executable" yaml:"executable"`
	// TitlePattern is a regular expression matched against window titles,
	// anchored at the start of the title. Matching is case-sensitive.
	TitlePattern string `json:"title_pattern" yaml:"title_pattern"`
	// RetryCount is how many extra enumeration passes to make after the
	// first miss before giving up.
	RetryCount int `json:"retry_count" yaml:"retry_count"`
	// RetryDelayMS is the pause between passes in milliseconds. 0 retries
	// immediately.
	RetryDelayMS int `json:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// RetryDelay returns the pause between enumeration passes.
func (t CaptureTarget) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMS) * time.Millisecond
}

// Configured reports whether the target names both a source and an
// executable. An unconfigured target leaves the tracker idle.
func (t CaptureTarget) Configured() bool {
	return t.Source != "" && t.Executable != ""
}

// Validate checks the target's bounds and compiles its pattern.
func (t CaptureTarget) Validate() error {
	if t.RetryCount < MinRetryCount || t.RetryCount > MaxRetryCount {
		return fmt.Errorf("retry_count %d out of range [%d, %d]", t.RetryCount, MinRetryCount, MaxRetryCount)
	}
	if t.RetryDelayMS < 0 {
		return fmt.Errorf("retry_delay_ms must not be negative")
	}
	if t.TitlePattern != "" {
		if _, err := regexp.Compile(t.TitlePattern); err != nil {
			return fmt.Errorf("title_pattern: %w", err)
		}
	}
	return nil
}

// OBSConfig holds the obs-websocket endpoint.
type OBSConfig struct {
	URL      string `json:"url" yaml:"url"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Config represents the application configuration. It is a plain value:
// comparable, copied on read, replaced on update.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	// Backend selects the window system backend: auto, x11, or mutter.
	Backend string `json:"backend" yaml:"backend"`
	// PollIntervalMS is how often the watched window is checked for
	// liveness and title changes, in milliseconds.
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms"`

	OBS    OBSConfig     `json:"obs" yaml:"obs"`
	Target CaptureTarget `json:"target" yaml:"target"`
}

// PollInterval returns the watch poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Validate checks the whole configuration. Invalid configs are rejected
// whole; nothing is fixed up silently.
func (c Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range", c.ServerPort)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	switch c.Backend {
	case BackendAuto, BackendX11, BackendMutter:
	default:
		return fmt.Errorf("backend %q not one of auto, x11, mutter", c.Backend)
	}
	if c.OBS.URL == "" {
		return fmt.Errorf("obs.url is required")
	}
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	return nil
}

// Defaults returns the configuration written on first run.
func Defaults() Config {
	return Config{
		ServerPort:     8080,
		LogLevel:       "info",
		Backend:        BackendAuto,
		PollIntervalMS: 500,
		OBS: OBSConfig{
			URL: "ws://localhost:4455",
		},
		Target: CaptureTarget{
			RetryCount:   3,
			RetryDelayMS: 500,
		},
	}
}
