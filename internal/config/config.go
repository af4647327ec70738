// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys; env vars are the upper-cased key with the KILLPOINTS_ prefix.
// - New() returns defaults, Load layers a YAML file and the environment on top.
// - List values may be given as comma separated strings.
package config

import (
	"runtime"
	"time"

	"github.com/okian/killpoints/internal/domain/scoring"
)

// Rule source kinds.
const (
	RuleSourceXLSX   = "xlsx"
	RuleSourceSheets = "sheets"
	RuleSourceYAML   = "yaml"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFile, when set, mirrors logs into a rotated file.
	LogFile string `koanf:"log_file"`
	LogJSON bool   `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Season selects the rule sheet ("Season <n>").
	Season int `koanf:"season"`

	// RuleSource is one of xlsx, sheets or yaml.
	RuleSource string `koanf:"rule_source"`
	// RulePath is the workbook or YAML file for the file based sources.
	RulePath string `koanf:"rule_path"`
	// SpreadsheetID and CredentialsFile configure the sheets source.
	SpreadsheetID   string `koanf:"spreadsheet_id"`
	CredentialsFile string `koanf:"credentials_file"`
	// MissingRulesFile receives write-back rows for the yaml source.
	MissingRulesFile   string        `koanf:"missing_rules_file"`
	RuleRefreshMinimum time.Duration `koanf:"rule_refresh_minimum"`

	ZKillboardURL     string        `koanf:"zkill_url"`
	ESIURL            string        `koanf:"esi_url"`
	UserAgent         string        `koanf:"user_agent"`
	ZKillboardRate    float64       `koanf:"zkill_rate"`
	ZKillboardBurst   int           `koanf:"zkill_burst"`
	ESIRate           float64       `koanf:"esi_rate"`
	ESIBurst          int           `koanf:"esi_burst"`
	MaxRetries        int           `koanf:"max_retries"`
	BackoffInitial    time.Duration `koanf:"backoff_initial"`
	BackoffMax        time.Duration `koanf:"backoff_max"`
	PageTTL           time.Duration `koanf:"page_ttl"`
	KillmailCacheSize int           `koanf:"killmail_cache_size"`

	// ScoreCacheSize bounds the (kill, perspective) score cache; ScoreCacheTTL
	// of zero keeps entries until evicted by size.
	ScoreCacheSize int           `koanf:"score_cache_size"`
	ScoreCacheTTL  time.Duration `koanf:"score_cache_ttl"`

	HistoryDays            int     `koanf:"history_days"`
	MaxPages               int     `koanf:"max_pages"`
	FetchConcurrency       int     `koanf:"fetch_concurrency"`
	TopN                   int     `koanf:"top_n"`
	ChainMultiplier        float64 `koanf:"chain_multiplier"`
	LeaderboardPerspective string  `koanf:"leaderboard_perspective"`
	MetaCurve              string  `koanf:"meta_curve"`
	WindowStrategy         string  `koanf:"window_strategy"`
	ExcludedSystems        []int64 `koanf:"excluded_systems"`
	ExcludedShipTypes      []int64 `koanf:"excluded_ship_types"`

	// WorkerCount sets the number of leaderboard refresh workers.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the refresh queue.
	QueueSize       int           `koanf:"queue_size"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	RefreshSpacing  time.Duration `koanf:"refresh_spacing"`

	TracingEnabled bool `koanf:"tracing_enabled"`

	// TrackedEntities are tracked at startup.
	TrackedEntities []int64 `koanf:"tracked_entities"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		MaxLeaderboardLimit:    100,
		Season:                 1,
		RuleSource:             RuleSourceXLSX,
		RulePath:               "rules.xlsx",
		RuleRefreshMinimum:     5 * time.Minute,
		ZKillboardURL:          "https://zkillboard.com",
		ESIURL:                 "https://esi.evetech.net",
		UserAgent:              "killpoints/1.0",
		ZKillboardRate:         2,
		ZKillboardBurst:        2,
		ESIRate:                50,
		ESIBurst:               50,
		MaxRetries:             5,
		BackoffInitial:         500 * time.Millisecond,
		BackoffMax:             30 * time.Second,
		PageTTL:                time.Hour,
		KillmailCacheSize:      100_000,
		ScoreCacheSize:         200_000,
		HistoryDays:            90,
		MaxPages:               100,
		FetchConcurrency:       50,
		TopN:                   30,
		ChainMultiplier:        2,
		LeaderboardPerspective: "absent",
		MetaCurve:              scoring.ExponentialCurve.String(),
		WindowStrategy:         scoring.DynamicWindow.String(),
		ExcludedSystems:        append([]int64(nil), scoring.DefaultExcludedSystems...),
		WorkerCount:            runtime.NumCPU(),
		QueueSize:              10_000,
		RefreshInterval:        6 * time.Hour,
		RefreshSpacing:         2 * time.Second,
	}
}
