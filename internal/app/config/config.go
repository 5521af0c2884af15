package config

import "time"

// Config provides read-only access to engine configuration.
// This interface abstracts the configuration source (setting.yaml,
// defaults) so the rest of the engine doesn't depend on how it was
// loaded.
type Config interface {
	// Core settings
	Home() string // base directory for issuegate state (ISSUEGATE_HOME)

	// Safety knobs
	LockTTL() time.Duration          // max lock hold before stealable
	RateLimitMaxOps() int            // granted ops per operation per window
	RateLimitWindow() time.Duration  // rate-limit rolling window
	LoopThreshold() int              // identical attempts treated as a loop
	LoopWindow() time.Duration       // loop-detection rolling window
	CooldownInterval() time.Duration // min interval per (actor, operation)

	// Fingerprinting
	FingerprintLength() int // hex chars in a fingerprint

	// Tracker collaborator
	TrackerBin() string            // tracker CLI binary
	TrackerTimeout() time.Duration // per-call timeout

	// History audit store
	HistoryDBPath() string // sqlite database path

	// Logging
	StderrLevel() string // stderr log level

	// Metadata
	ConfigSource() string // "yaml" or "default"
	SettingPath() string  // path to setting.yaml if loaded from file
}

// AppConfig is the concrete implementation of Config.
type AppConfig struct {
	home string

	lockTTL          time.Duration
	rateLimitMaxOps  int
	rateLimitWindow  time.Duration
	loopThreshold    int
	loopWindow       time.Duration
	cooldownInterval time.Duration

	fingerprintLength int

	trackerBin     string
	trackerTimeout time.Duration

	historyDBPath string

	stderrLevel string

	configSource string
	settingPath  string
}

func (c *AppConfig) Home() string                    { return c.home }
func (c *AppConfig) LockTTL() time.Duration          { return c.lockTTL }
func (c *AppConfig) RateLimitMaxOps() int            { return c.rateLimitMaxOps }
func (c *AppConfig) RateLimitWindow() time.Duration  { return c.rateLimitWindow }
func (c *AppConfig) LoopThreshold() int              { return c.loopThreshold }
func (c *AppConfig) LoopWindow() time.Duration       { return c.loopWindow }
func (c *AppConfig) CooldownInterval() time.Duration { return c.cooldownInterval }
func (c *AppConfig) FingerprintLength() int          { return c.fingerprintLength }
func (c *AppConfig) TrackerBin() string              { return c.trackerBin }
func (c *AppConfig) TrackerTimeout() time.Duration   { return c.trackerTimeout }
func (c *AppConfig) HistoryDBPath() string           { return c.historyDBPath }
func (c *AppConfig) StderrLevel() string             { return c.stderrLevel }
func (c *AppConfig) ConfigSource() string            { return c.configSource }
func (c *AppConfig) SettingPath() string             { return c.settingPath }

// NewAppConfig creates an AppConfig with the given values.
// Typically called by the infra layer after loading and merging settings.
func NewAppConfig(
	home string,
	lockTTL time.Duration,
	rateLimitMaxOps int, rateLimitWindow time.Duration,
	loopThreshold int, loopWindow time.Duration,
	cooldownInterval time.Duration,
	fingerprintLength int,
	trackerBin string, trackerTimeout time.Duration,
	historyDBPath string,
	stderrLevel string,
	configSource, settingPath string,
) *AppConfig {
	return &AppConfig{
		home:              home,
		lockTTL:           lockTTL,
		rateLimitMaxOps:   rateLimitMaxOps,
		rateLimitWindow:   rateLimitWindow,
		loopThreshold:     loopThreshold,
		loopWindow:        loopWindow,
		cooldownInterval:  cooldownInterval,
		fingerprintLength: fingerprintLength,
		trackerBin:        trackerBin,
		trackerTimeout:    trackerTimeout,
		historyDBPath:     historyDBPath,
		stderrLevel:       stderrLevel,
		configSource:      configSource,
		settingPath:       settingPath,
	}
}
