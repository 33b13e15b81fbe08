package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/dedup"
	"weighbot/pkg/dialog"
	"weighbot/pkg/greenapi"
	"weighbot/pkg/setup"
	"weighbot/pkg/store"
	"weighbot/pkg/telegram"
	"weighbot/pkg/weight"
)

// Extractor is what the HTTP layer needs from the weight pipeline.
type Extractor interface {
	Extract(ctx context.Context, path string) weight.Result
}

var (
	cfg       *config.Config
	jwtSecret []byte // JWT_SECRET, dev fallback when unset
	st        *store.Store
	extractor Extractor
	bot       *dialog.Bot
	whatsapp  *greenapi.Client // nil when Green API is not configured
	seen      dedup.Store
)

func main() {
	cfg = config.Load()
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	jwtSecret = []byte(cfg.JWTSecret)
	if cfg.InsecureJWT() {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// `weighbot migrate` runs migrations and seeding, then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		cfg.AutoMigrate = true
		initDB(ctx)
		fmt.Println("migration and seeding completed")
		return
	}

	initDB(ctx)
	defer st.Close()

	pipeline, release := setup.Pipeline(cfg)
	defer release()
	extractor = pipeline

	seen = newDedup(ctx)
	bot = newBot(ctx)

	r := gin.Default()
	setupRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}

func newDedup(ctx context.Context) dedup.Store {
	if cfg.RedisURL != "" {
		r, err := dedup.NewRedis(ctx, cfg.RedisURL, dedup.DefaultTTL)
		if err == nil {
			return r
		}
		log.Warn().Err(err).Msg("redis unavailable, de-duplicating in memory")
	}
	return dedup.NewMemory(dedup.DefaultTTL)
}

// newBot wires the dialog to the configured transports. Green API serves the
// webhook; Telegram, when a token is set, polls in the background.
func newBot(ctx context.Context) *dialog.Bot {
	dcfg := dialog.Config{
		MinWeight: cfg.Weight.Min,
		MaxWeight: cfg.Weight.Max,
		PhotoDir:  filepath.Join(uploadBaseDir(), "photos"),
	}
	var opts []dialog.Option

	if cfg.GreenAPIEnabled() {
		whatsapp = greenapi.NewClient(greenapi.Config{
			BaseURL:       cfg.GreenAPI.BaseURL,
			IDInstance:    cfg.GreenAPI.IDInstance,
			TokenInstance: cfg.GreenAPI.TokenInstance,
		})
		if cfg.GreenAPI.GroupID != "" {
			opts = append(opts, dialog.WithReporter(greenapi.GroupReporter{Client: whatsapp, GroupID: cfg.GreenAPI.GroupID}))
		}
	} else {
		log.Warn().Msg("GREEN_API_ID_INSTANCE/GREEN_API_TOKEN_INSTANCE not set, WhatsApp replies disabled")
	}

	if cfg.Telegram.Token == "" {
		return dialog.New(dcfg, st, extractor, opts...)
	}
	api, err := telegram.Connect(cfg.Telegram.Token)
	if err != nil {
		log.Error().Err(err).Msg("telegram disabled")
		return dialog.New(dcfg, st, extractor, opts...)
	}
	if cfg.Telegram.GroupID != 0 && !cfg.GreenAPIEnabled() {
		opts = append(opts, dialog.WithReporter(telegram.GroupReporter{API: api, GroupID: cfg.Telegram.GroupID}))
	}
	b := dialog.New(dcfg, st, extractor, opts...)
	go telegram.NewPoller(api, b).Run(ctx)
	return b
}
