package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"weighbot/models"
	"weighbot/pkg/config"
	"weighbot/pkg/setup"
	"weighbot/pkg/store"
)

func main() {
	role := flag.String("role", models.RoleOperator, "role: operator or administrator")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [-role administrator] <username> <password>")
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)

	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	st, err := setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}
	defer st.Close()

	op, err := st.CreateOperator(ctx, username, password, *role)
	if errors.Is(err, store.ErrExists) {
		existing, _ := st.OperatorByUsername(ctx, username)
		if existing != nil {
			fmt.Printf("operator %s already exists (id=%d)\n", username, existing.ID)
		}
		os.Exit(0)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create operator")
	}
	fmt.Printf("created operator %s id=%d role=%s\n", username, op.ID, *role)
}
