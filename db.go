package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/setup"
)

func initDB(ctx context.Context) {
	var err error
	st, err = setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("database not reachable")
	}
	ensureUploadBase()
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase() {
	base := uploadBaseDir()
	if err := os.MkdirAll(base, 0o755); err != nil {
		log.Error().Err(err).Str("dir", base).Msg("failed to create upload base dir")
	}
}

// uploadBaseDir returns the base directory for photos and API uploads (UPLOAD_BASE).
func uploadBaseDir() string {
	if cfg != nil && cfg.UploadBase != "" {
		return cfg.UploadBase
	}
	return "uploads"
}
