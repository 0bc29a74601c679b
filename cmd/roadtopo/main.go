package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thunur/roadtopo/internal/config"
	"github.com/thunur/roadtopo/internal/driver"
	"github.com/thunur/roadtopo/internal/logging"
	"github.com/thunur/roadtopo/internal/store"
	"github.com/thunur/roadtopo/pkg/geom"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(logging.Options{Rank: 0, Debug: cfg.Debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorw("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx := context.Background()

	h, err := geom.NewHandle()
	if err != nil {
		return fmt.Errorf("opening geometry handle: %w", err)
	}
	defer h.Close()

	src, err := store.NewPGSource(ctx, cfg.PostgresDSN, h, "")
	if err != nil {
		return fmt.Errorf("connecting source: %w", err)
	}
	defer src.Close()

	cp, err := store.NewCheckpointStore(cfg.CheckpointDir, h, cfg.CompressionLevel)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer cp.Close()

	start := time.Now()
	result, err := driver.Run(ctx, cfg, src, cp, h, log)
	if err != nil {
		return fmt.Errorf("running build: %w", err)
	}

	log.Infow("build complete",
		"final_zone", result.FinalZoneID,
		"total_orphans", result.TotalOrphans,
		"elapsed", time.Since(start))
	return nil
}
