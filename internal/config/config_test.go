package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/killpoints/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.RuleSource, convey.ShouldEqual, config.RuleSourceXLSX)
			convey.So(cfg.HistoryDays, convey.ShouldEqual, 90)
			convey.So(cfg.MaxPages, convey.ShouldEqual, 100)
			convey.So(cfg.FetchConcurrency, convey.ShouldEqual, 50)
			convey.So(cfg.TopN, convey.ShouldEqual, 30)
			convey.So(cfg.ChainMultiplier, convey.ShouldEqual, 2.0)
			convey.So(cfg.PageTTL, convey.ShouldEqual, time.Hour)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.ExcludedSystems, convey.ShouldContain, int64(30000142))
			convey.So(cfg.LeaderboardPerspective, convey.ShouldEqual, "absent")
		})

		convey.Convey("And the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"zero season", func(c *config.Config) { c.Season = 0 }},
		{"unknown rule source", func(c *config.Config) { c.RuleSource = "csv" }},
		{"xlsx without path", func(c *config.Config) { c.RulePath = "" }},
		{"sheets without id", func(c *config.Config) { c.RuleSource = config.RuleSourceSheets }},
		{"multiplier of one", func(c *config.Config) { c.ChainMultiplier = 1 }},
		{"zero top n", func(c *config.Config) { c.TopN = 0 }},
		{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
		{"unknown perspective", func(c *config.Config) { c.LeaderboardPerspective = "sideways" }},
		{"unknown meta curve", func(c *config.Config) { c.MetaCurve = "cubic" }},
		{"unknown window strategy", func(c *config.Config) { c.WindowStrategy = "static" }},
		{"negative refresh", func(c *config.Config) { c.RefreshInterval = -time.Second }},
		{"zero esi rate", func(c *config.Config) { c.ESIRate = 0 }},
	}

	convey.Convey("Given invalid configurations", t, func() {
		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)

			convey.Convey("Then validation rejects "+tc.name, func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
			})
		}
	})
}
