package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/setup"
)

// Runs the full weight pipeline on one photo and prints the result with its
// diagnostics as JSON.
func main() {
	f := flag.String("file", "", "image file to read")
	flag.Parse()
	if *f == "" {
		fmt.Fprintln(os.Stderr, "-file required")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	pipeline, release := setup.Pipeline(cfg)
	defer release()

	res := pipeline.Extract(context.Background(), *f)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
	if !res.Found {
		os.Exit(1)
	}
}
