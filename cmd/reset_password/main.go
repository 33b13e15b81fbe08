package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/setup"
)

func main() {
	username := flag.String("username", "", "operator to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "--username and --password are required")
		os.Exit(2)
	}

	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	st, err := setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	if err := st.ResetPassword(ctx, *username, *password); err != nil {
		log.Fatal().Err(err).Str("username", *username).Msg("reset failed")
	}
	fmt.Printf("password reset for operator %s, refresh tokens revoked\n", *username)
}
