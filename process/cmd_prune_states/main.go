package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/setup"
)

func main() {
	olderThan := flag.Duration("older-than", 7*24*time.Hour, "delete dialog states idle longer than this")
	flag.Parse()
	if *olderThan <= 0 {
		log.Fatal().Msg("-older-than must be positive")
	}

	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	st, err := setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	n, err := st.PruneStates(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		log.Fatal().Err(err).Msg("prune states")
	}
	fmt.Printf("pruned %d dialog states idle for more than %s\n", n, *olderThan)
}
