package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tkoike/issuegate/internal/app/config"
)

// RawSettings is the structure of setting.yaml. All fields are pointers
// so absent keys fall back to the documented defaults.
type RawSettings struct {
	Home *string `yaml:"home"`

	LockTTLSec         *int `yaml:"lock_ttl_sec"`
	RateLimitMaxOps    *int `yaml:"rate_limit_max_ops"`
	RateLimitWindowSec *int `yaml:"rate_limit_window_sec"`
	LoopThreshold      *int `yaml:"loop_threshold"`
	LoopWindowSec      *int `yaml:"loop_window_sec"`
	CooldownSec        *int `yaml:"cooldown_sec"`

	FingerprintLength *int `yaml:"fingerprint_length"`

	TrackerBin        *string `yaml:"tracker_bin"`
	TrackerTimeoutSec *int    `yaml:"tracker_timeout_sec"`

	HistoryDB *string `yaml:"history_db"`

	StderrLevel *string `yaml:"stderr_level"`
}

// LoadSettings loads configuration from <baseDir>/setting.yaml.
// Priority: setting.yaml > defaults. A missing file is not an error; a
// present but unparsable file is.
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	yamlPath := filepath.Join(baseDir, "setting.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
		configSource = "yaml"
		settingPath = yamlPath
	}

	applyDefaults(settings, baseDir)
	return buildAppConfig(settings, configSource, settingPath), nil
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(s *RawSettings, baseDir string) {
	setStr := func(p **string, v string) {
		if *p == nil {
			*p = &v
		}
	}
	setInt := func(p **int, v int) {
		if *p == nil {
			*p = &v
		}
	}

	setStr(&s.Home, baseDir)
	setInt(&s.LockTTLSec, 300)           // 5 min: covers a create/update cycle
	setInt(&s.RateLimitMaxOps, 10)       // per operation per window
	setInt(&s.RateLimitWindowSec, 3600)  // rolling hour
	setInt(&s.LoopThreshold, 3)          // identical attempts before a loop is assumed
	setInt(&s.LoopWindowSec, 3600)       // rolling hour
	setInt(&s.CooldownSec, 1800)         // 30 min between an actor's attempts
	setInt(&s.FingerprintLength, 16)
	setStr(&s.TrackerBin, "issue-tracker")
	setInt(&s.TrackerTimeoutSec, 60)
	setStr(&s.HistoryDB, filepath.Join(*s.Home, "var", "history", "history.db"))
	setStr(&s.StderrLevel, "info")
}

func buildAppConfig(s *RawSettings, configSource, settingPath string) *config.AppConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return config.NewAppConfig(
		*s.Home,
		sec(*s.LockTTLSec),
		*s.RateLimitMaxOps, sec(*s.RateLimitWindowSec),
		*s.LoopThreshold, sec(*s.LoopWindowSec),
		sec(*s.CooldownSec),
		*s.FingerprintLength,
		*s.TrackerBin, sec(*s.TrackerTimeoutSec),
		*s.HistoryDB,
		*s.StderrLevel,
		configSource, settingPath,
	)
}
