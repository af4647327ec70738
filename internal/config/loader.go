package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/killpoints/internal/domain/scoring"
)

const (
	envPrefix = "KILLPOINTS_"
	envConfig = "KILLPOINTS_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if KILLPOINTS_CONFIG is set
//  3. env (prefix KILLPOINTS_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// KILLPOINTS_QUEUE_SIZE -> queue_size (flat keys).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The config path itself is not a setting.
	k.Delete("config")

	cfg := *base
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				splitListHook(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, conf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitListHook splits a string on sep when the target is any slice, so
// KILLPOINTS_TRACKED_ENTITIES=1,2 reaches []int64 as ["1" "2"] and weak
// decoding converts each element. An empty string gives an empty slice.
func splitListHook(sep string) mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return invalid("log_level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	if c.Season < 1 {
		return invalid("season must be positive, got %d", c.Season)
	}

	switch c.RuleSource {
	case RuleSourceXLSX, RuleSourceYAML:
		if c.RulePath == "" {
			return invalid("rule_path is required for rule_source %s", c.RuleSource)
		}
	case RuleSourceSheets:
		if c.SpreadsheetID == "" {
			return invalid("spreadsheet_id is required for rule_source sheets")
		}
	default:
		return invalid("rule_source %q, want xlsx, sheets or yaml", c.RuleSource)
	}

	if c.ZKillboardURL == "" || c.ESIURL == "" {
		return invalid("zkill_url and esi_url must not be empty")
	}
	if c.ZKillboardRate <= 0 || c.ESIRate <= 0 {
		return invalid("upstream rates must be positive")
	}
	if c.MaxRetries < 0 {
		return invalid("max_retries must not be negative")
	}

	positive := []struct {
		key string
		v   int
	}{
		{"max_leaderboard_limit", c.MaxLeaderboardLimit},
		{"history_days", c.HistoryDays},
		{"max_pages", c.MaxPages},
		{"fetch_concurrency", c.FetchConcurrency},
		{"top_n", c.TopN},
		{"worker_count", c.WorkerCount},
		{"queue_size", c.QueueSize},
		{"score_cache_size", c.ScoreCacheSize},
	}
	for _, p := range positive {
		if p.v < 1 {
			return invalid("%s must be positive, got %d", p.key, p.v)
		}
	}

	if c.ChainMultiplier <= 1 {
		return invalid("chain_multiplier must be greater than 1, got %v", c.ChainMultiplier)
	}
	switch strings.ToLower(c.LeaderboardPerspective) {
	case "absent", "present":
	default:
		return invalid("leaderboard_perspective %q, want absent or present", c.LeaderboardPerspective)
	}
	if _, err := scoring.ParseMetaCurve(c.MetaCurve); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := scoring.ParseWindowStrategy(c.WindowStrategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.RefreshInterval < 0 || c.RefreshSpacing < 0 {
		return invalid("refresh_interval and refresh_spacing must not be negative")
	}
	return nil
}
