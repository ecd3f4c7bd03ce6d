// Command predict scores one (user, movie) pair with the configured model
// and prints the raw and normalized score.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	app "github.com/okian/reel/internal/app"
	"github.com/okian/reel/internal/config"
	"github.com/okian/reel/pkg/logger"
)

const defaultMovieID = 10

func main() {
	var (
		userID  = flag.String("user", "6", "User id to score for")
		movieID = flag.Int("movie", defaultMovieID, "Catalog movie id to score")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *userID, *movieID); err != nil {
		os.Stderr.WriteString("predict: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, userID string, movieID int) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	_ = logger.SetLevelString("warn")

	// One call needs neither the pool nor the cache.
	svc := app.New(append(app.OptionsFromConfig(cfg),
		app.WithWorkerCount(0),
		app.WithCache(false, "", 0),
	)...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	p, err := svc.PredictOne(ctx, userID, movieID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "user %s, movie %d %q (model %s)\n", userID, p.Movie.ID, p.Movie.Title, svc.ModelVersion())
	fmt.Fprintf(os.Stdout, "raw score:        %.4f\n", p.Raw)
	fmt.Fprintf(os.Stdout, "normalized score: %.2f\n", p.Normalized)
	return nil
}
