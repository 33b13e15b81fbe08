package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/setup"
	"weighbot/process/scan"
)

// Re-runs extraction for scan records that have no weight yet.
func main() {
	dir := flag.String("dir", "uploads/photos", "base dir for records without a stored path")
	limit := flag.Int("limit", 500, "maximum records to retry")
	dryRun := flag.Bool("dry-run", false, "report what would change without updating records")
	flag.Parse()

	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	records, err := st.FailedScanRecords(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("query failed records")
	}
	pipeline, release := setup.Pipeline(cfg)
	defer release()

	var rec scan.Recorder = st
	if *dryRun {
		rec = nil
	}
	stats := scan.New(scan.Options{Dir: *dir}, pipeline, rec).Rescan(ctx, records)
	fmt.Printf("retried=%d updated=%d still_failed=%d\n", stats.Files, stats.Found, stats.Failed)
}
