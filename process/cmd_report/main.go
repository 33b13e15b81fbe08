package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/export"
	"weighbot/pkg/setup"
	"weighbot/process/report"
)

func main() {
	month := flag.String("month", time.Now().Format("2006-01"), "month to report (YYYY-MM)")
	truck := flag.String("truck", "", "limit the report to one truck")
	list := flag.Bool("list", false, "list matching weighings")
	xlsx := flag.String("xlsx", "", "also write the weighings to this .xlsx file")
	flag.Parse()

	cfg := config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	st, err := setup.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	m, err := report.Build(ctx, st, *month, *truck, time.Local)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	m.Print(os.Stdout, *list)

	if *xlsx == "" {
		return
	}
	data, err := export.WeighingsXLSX(m.Items, time.Local)
	if err != nil {
		log.Fatal().Err(err).Msg("build xlsx")
	}
	if err := os.WriteFile(*xlsx, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("write xlsx")
	}
	fmt.Println("wrote", *xlsx)
}
