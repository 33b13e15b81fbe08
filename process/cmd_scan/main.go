package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/setup"
	"weighbot/process/scan"
)

// Scans a directory of scale photos, records the extracted weights and
// optionally keeps watching for new files.
func main() {
	dir := flag.String("dir", "uploads/photos", "directory to scan for scale photos")
	dryRun := flag.Bool("dry-run", false, "run extraction only, no database reads or writes")
	watch := flag.Bool("watch", false, "watch the directory for new files after the initial scan")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	moveTo := flag.String("move", "", "move photos with a weight into this directory (downscaled above 1MB)")
	verbose := flag.Bool("verbose", false, "verbose per-file logging")
	flag.Parse()

	cfg := config.Load()
	if *verbose {
		cfg.LogLevel = "debug"
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, release := setup.Pipeline(cfg)
	defer release()

	opts := scan.Options{Dir: *dir, Workers: *workers, Verbose: *verbose}
	var s *scan.Scanner
	if *dryRun {
		log.Info().Str("dir", *dir).Msg("dry-run: no database interaction")
		s = scan.New(opts, pipeline, nil)
	} else {
		st, err := setup.Store(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		defer st.Close()
		opts.MoveTo = *moveTo
		s = scan.New(opts, pipeline, st)
		if err := s.Preload(ctx); err != nil {
			log.Fatal().Err(err).Msg("preload scan records")
		}
	}

	files, err := scan.ListImages(*dir)
	if err != nil {
		log.Fatal().Err(err).Msg("list photos")
	}
	log.Info().Int("files", len(files)).Int("workers", *workers).Msg("scanning")
	stats := s.Run(ctx, files)
	log.Info().Int64("files", stats.Files).Int64("found", stats.Found).Int64("failed", stats.Failed).
		Int64("skipped", stats.Skipped).Msg("scan finished")

	if *watch {
		if err := s.Watch(ctx); err != nil {
			log.Fatal().Err(err).Msg("watch failed")
		}
	}
}
