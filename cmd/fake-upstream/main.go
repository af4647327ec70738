// Command fake-upstream serves a generated universe over the zKillboard and
// ESI routes killpoints calls, and writes the matching rule file.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/killpoints/internal/fakeupstream"
	"github.com/okian/killpoints/pkg/logger"
)

type flags struct {
	addr       string
	seed       uint64
	characters int
	kills      int
	pageSize   int
	rulesPath  string
	season     int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "fake-upstream",
		Short:        "Serve a deterministic fake zKillboard and ESI",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", ":9090", "listen address")
	fl.Uint64Var(&f.seed, "seed", 1, "generator seed")
	fl.IntVar(&f.characters, "characters", 5, "number of characters")
	fl.IntVar(&f.kills, "kills", 20, "kills per character")
	fl.IntVar(&f.pageSize, "page-size", 200, "kills per zKillboard page")
	fl.StringVar(&f.rulesPath, "rules", "rules.yaml", "where to write the rule file; empty skips it")
	fl.IntVar(&f.season, "season", 1, "season of the written rules")
	return cmd
}

func run(ctx context.Context, f flags) error {
	log := logger.Get().Named("fake-upstream")

	u := fakeupstream.Generate(fakeupstream.Config{
		Seed:              f.seed,
		Characters:        f.characters,
		KillsPerCharacter: f.kills,
	})
	if f.rulesPath != "" {
		if err := u.WriteRules(f.rulesPath, f.season); err != nil {
			return err
		}
		log.Info(ctx, "wrote rules", logger.String("path", f.rulesPath), logger.Int("season", f.season))
	}
	for _, c := range u.Characters {
		log.Info(ctx, "character",
			logger.Int64("id", c.ID),
			logger.String("name", c.Name),
			logger.Int("kills", len(u.KillsOf(c.ID))))
	}

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           fakeupstream.NewServer(u, fakeupstream.WithPageSize(f.pageSize)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving fake upstream", logger.String("addr", f.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
