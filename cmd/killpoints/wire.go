package main

import (
	"context"
	"fmt"

	"github.com/okian/killpoints/internal/adapters/rulesource/sheets"
	"github.com/okian/killpoints/internal/adapters/rulesource/xlsx"
	"github.com/okian/killpoints/internal/adapters/rulesource/yamlfile"
	"github.com/okian/killpoints/internal/adapters/upstream"
	service "github.com/okian/killpoints/internal/app"
	"github.com/okian/killpoints/internal/config"
	"github.com/okian/killpoints/internal/domain/cache"
	"github.com/okian/killpoints/internal/domain/rules"
	"github.com/okian/killpoints/internal/domain/scoring"
	"github.com/okian/killpoints/pkg/logger"
)

// stack is the wired scoring engine.
type stack struct {
	client *upstream.Client
	table  *rules.Table
	svc    *service.Service
}

func buildStack(ctx context.Context, cfg *config.Config, log logger.Logger) (*stack, error) {
	client := upstream.New(
		upstream.WithZKillboardURL(cfg.ZKillboardURL),
		upstream.WithESIURL(cfg.ESIURL),
		upstream.WithUserAgent(cfg.UserAgent),
		upstream.WithZKillboardRate(cfg.ZKillboardRate, cfg.ZKillboardBurst),
		upstream.WithESIRate(cfg.ESIRate, cfg.ESIBurst),
		upstream.WithMaxRetries(uint64(cfg.MaxRetries)),
		upstream.WithBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		upstream.WithPageTTL(cfg.PageTTL),
		upstream.WithKillmailCacheSize(cfg.KillmailCacheSize),
		upstream.WithLogger(log.Named("upstream")),
	)

	source, err := newRuleSource(ctx, cfg, log.Named("rules"))
	if err != nil {
		return nil, err
	}
	table := rules.New(
		rules.WithSource(source),
		rules.WithNamer(client),
		rules.WithSeason(cfg.Season),
		rules.WithMinRefreshInterval(cfg.RuleRefreshMinimum),
		rules.WithLogger(log.Named("rules")),
	)

	metaCurve, err := scoring.ParseMetaCurve(cfg.MetaCurve)
	if err != nil {
		return nil, err
	}
	window, err := scoring.ParseWindowStrategy(cfg.WindowStrategy)
	if err != nil {
		return nil, err
	}
	scorer := scoring.New(table,
		scoring.WithDogma(client),
		scoring.WithMetaCurve(metaCurve),
		scoring.WithWindowStrategy(window),
		scoring.WithExcludedSystems(cfg.ExcludedSystems),
		scoring.WithExcludedShipTypes(cfg.ExcludedShipTypes),
		scoring.WithLogger(log.Named("scoring")),
	)

	perspective, err := service.ParsePerspective(cfg.LeaderboardPerspective)
	if err != nil {
		return nil, err
	}
	svc := service.New(client, scorer,
		service.WithCache(cache.New(cache.WithSize(cfg.ScoreCacheSize), cache.WithTTL(cfg.ScoreCacheTTL))),
		service.WithRules(table),
		service.WithHistoryDays(cfg.HistoryDays),
		service.WithMaxPages(cfg.MaxPages),
		service.WithFetchConcurrency(cfg.FetchConcurrency),
		service.WithTopN(cfg.TopN),
		service.WithChainMultiplier(cfg.ChainMultiplier),
		service.WithPerspective(perspective),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithRefreshInterval(cfg.RefreshInterval),
		service.WithRefreshSpacing(cfg.RefreshSpacing),
		service.WithLogger(log.Named("service")),
	)
	return &stack{client: client, table: table, svc: svc}, nil
}

func newRuleSource(ctx context.Context, cfg *config.Config, log logger.Logger) (rules.Source, error) {
	switch cfg.RuleSource {
	case config.RuleSourceXLSX:
		return xlsx.New(cfg.RulePath, xlsx.WithLogger(log)), nil
	case config.RuleSourceYAML:
		return yamlfile.New(cfg.RulePath,
			yamlfile.WithMissingFile(cfg.MissingRulesFile),
			yamlfile.WithLogger(log)), nil
	case config.RuleSourceSheets:
		if cfg.CredentialsFile == "" {
			return sheets.New(cfg.SpreadsheetID, sheets.WithLogger(log)), nil
		}
		return sheets.NewFromCredentials(ctx, cfg.SpreadsheetID, cfg.CredentialsFile, sheets.WithLogger(log))
	}
	return nil, fmt.Errorf("%w: rule_source %q", config.ErrInvalidConfig, cfg.RuleSource)
}
