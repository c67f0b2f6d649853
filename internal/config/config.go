// Package config loads the control plane's layered configuration: a YAML file of structural
// defaults overridden by process environment variables, per spec.md §6.
//
// Grounded on the teacher's internal/config/guards.go (gopkg.in/yaml.v3 file load) pattern;
// generalized here to also read env var overrides since spec.md §6 specifies env as the
// canonical tuning surface.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable, fully-resolved configuration passed by reference into every
// subsystem constructor. Nothing reads os.Getenv after Load returns.
type Config struct {
	AI       AIConfig       `yaml:"ai"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	License  LicenseConfig  `yaml:"license"`
	News     NewsConfig     `yaml:"news"`
	Strategy StrategyConfig `yaml:"strategy"`
	Venues   map[string]VenueConfig `yaml:"venues"`
}

type AIConfig struct {
	CacheTTLSec      int `yaml:"cache_ttl_sec"`
	RateLimitPerMin  int `yaml:"rate_limit_per_min"`
	AICooldownSec    int `yaml:"ai_cooldown_sec"`
	EventThrottleSec int `yaml:"event_throttle_sec"`
}

type TriggerConfig struct {
	DebounceSec     int                `yaml:"debounce_sec"`
	HysteresisRatio float64            `yaml:"hysteresis_ratio"`
	RefreshSeconds  map[string]int     `yaml:"refresh_seconds"`
}

type LicenseConfig struct {
	Enforcement   bool `yaml:"enforcement"`
	CacheTTLSec   int  `yaml:"cache_ttl_sec"`
}

type NewsConfig struct {
	RiskEnabled bool `yaml:"risk_enabled"`
}

type StrategyConfig struct {
	PythonEnabled   bool   `yaml:"python_enabled"`
	PythonURL       string `yaml:"python_url"`
	PythonTimeoutMs int    `yaml:"python_timeout_ms"`
}

type VenueConfig struct {
	MinGapMs int `yaml:"min_gap_ms"`
}

// Default returns the hardcoded defaults from spec.md §6, before file/env layering.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			CacheTTLSec:      300,
			RateLimitPerMin:  60,
			AICooldownSec:    300,
			EventThrottleSec: 180,
		},
		Trigger: TriggerConfig{
			DebounceSec:     90,
			HysteresisRatio: 0.6,
			RefreshSeconds: map[string]int{
				"5m": 180, "15m": 300, "1h": 600, "4h": 1800, "1d": 10800,
			},
		},
		License: LicenseConfig{Enforcement: true, CacheTTLSec: 600},
		News:    NewsConfig{RiskEnabled: true},
		Strategy: StrategyConfig{
			PythonEnabled:   false,
			PythonURL:       "http://localhost:9000",
			PythonTimeoutMs: 1200,
		},
		Venues: map[string]VenueConfig{
			"bingx": {MinGapMs: 120},
		},
	}
}

// Load builds the final Config: defaults, then an optional YAML file, then env overrides.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := envInt("AI_CACHE_TTL_SEC"); ok {
		cfg.AI.CacheTTLSec = v
	}
	if v, ok := envInt("AI_RATE_LIMIT_PER_MIN"); ok {
		cfg.AI.RateLimitPerMin = v
	}
	if v, ok := envInt("PRED_AI_COOLDOWN_SEC"); ok {
		cfg.AI.AICooldownSec = v
	}
	if v, ok := envInt("PRED_EVENT_THROTTLE_SEC"); ok {
		cfg.AI.EventThrottleSec = v
	}
	if v, ok := envInt("PRED_TRIGGER_DEBOUNCE_SEC"); ok {
		cfg.Trigger.DebounceSec = v
	}
	if v, ok := envFloat("PRED_HYSTERESIS_RATIO"); ok {
		cfg.Trigger.HysteresisRatio = v
	}
	for env, tf := range map[string]string{
		"PREDICTION_REFRESH_5M_SECONDS":  "5m",
		"PREDICTION_REFRESH_15M_SECONDS": "15m",
		"PREDICTION_REFRESH_1H_SECONDS":  "1h",
		"PREDICTION_REFRESH_4H_SECONDS":  "4h",
		"PREDICTION_REFRESH_1D_SECONDS":  "1d",
	} {
		if v, ok := envInt(env); ok {
			cfg.Trigger.RefreshSeconds[tf] = v
		}
	}
	if v, ok := envBool("LICENSE_ENFORCEMENT"); ok {
		cfg.License.Enforcement = v
	}
	if v, ok := envInt("LICENSE_CACHE_TTL_SECONDS"); ok {
		cfg.License.CacheTTLSec = v
	}
	if v, ok := envBool("ECON_NEWS_RISK_ENABLED"); ok {
		cfg.News.RiskEnabled = v
	}
	if v, ok := envBool("PY_STRATEGY_ENABLED"); ok {
		cfg.Strategy.PythonEnabled = v
	}
	if v := os.Getenv("PY_STRATEGY_URL"); v != "" {
		cfg.Strategy.PythonURL = v
	}
	if v, ok := envInt("PY_STRATEGY_TIMEOUT_MS"); ok {
		cfg.Strategy.PythonTimeoutMs = v
	}
	if v, ok := envInt("BINGX_MIN_GAP_MS"); ok {
		vc := cfg.Venues["bingx"]
		vc.MinGapMs = v
		cfg.Venues["bingx"] = vc
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// RefreshInterval returns the scheduled-refresh duration for a timeframe (§4.8).
func (c *TriggerConfig) RefreshInterval(tf string) time.Duration {
	secs, ok := c.RefreshSeconds[tf]
	if !ok {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// CacheTTLInterval returns the entitlement cache TTL as a duration (§4.15).
func (c *LicenseConfig) CacheTTLInterval() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}
