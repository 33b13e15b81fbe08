// Package setup builds the long-lived components shared by the server and the
// batch tools from one configuration.
package setup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"weighbot/pkg/config"
	"weighbot/pkg/llm"
	"weighbot/pkg/store"
	"weighbot/pkg/weight"
	"weighbot/pkg/weight/tesseract"
)

// WeightConfig maps the environment to pipeline settings.
func WeightConfig(cfg *config.Config) weight.Config {
	wc := weight.DefaultConfig()
	wc.MinWeight = cfg.Weight.Min
	wc.MaxWeight = cfg.Weight.Max
	wc.MinSegmentConfidence = cfg.OCR.MinConfidence
	wc.SkipOrientation = cfg.OCR.SkipOrientation
	if cfg.LLM.Timeout > 0 {
		wc.DisambiguatorTimeout = cfg.LLM.Timeout
	}
	return wc
}

// Disambiguator returns the configured language-model fallback, OpenAI first, or nil.
func Disambiguator(cfg *config.Config) weight.Disambiguator {
	switch {
	case cfg.LLM.OpenAIKey != "":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIKey,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Model:   cfg.LLM.OpenAIModel,
			Timeout: cfg.LLM.Timeout,
		})
	case cfg.LLM.GeminiKey != "":
		return llm.NewGemini(cfg.LLM.GeminiKey, cfg.LLM.GeminiModel)
	}
	return nil
}

// Pipeline creates the tesseract engines once and wires them into a pipeline.
// The returned func releases the engines. An engine that fails to start is
// skipped; the pipeline then reports every photo as unreadable.
func Pipeline(cfg *config.Config) (*weight.Pipeline, func()) {
	tc := tesseract.Config{TessdataPrefix: cfg.OCR.TessdataPrefix, Languages: cfg.OCR.Languages}
	var engines []weight.Engine
	var closers []func() error
	for _, mk := range []func(tesseract.Config) (*tesseract.Engine, error){tesseract.NewPrimary, tesseract.NewDigits} {
		e, err := mk(tc)
		if err != nil {
			log.Warn().Err(err).Msg("ocr engine unavailable")
			continue
		}
		engines = append(engines, e)
		closers = append(closers, e.Close)
	}
	if len(engines) == 0 {
		log.Error().Msg("no OCR engine available")
	}

	opts := []weight.Option{weight.WithLogger(log.With().Str("component", "weight").Logger())}
	if d := Disambiguator(cfg); d != nil {
		log.Info().Str("disambiguator", d.Name()).Msg("llm fallback enabled")
		opts = append(opts, weight.WithDisambiguator(d))
	}
	p := weight.New(WeightConfig(cfg), engines, opts...)
	return p, func() {
		for _, c := range closers {
			_ = c()
		}
	}
}

// Store opens the database and, when enabled, migrates it and seeds roles and the admin operator.
func Store(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(); err != nil {
			log.Warn().Err(err).Msg("migration incomplete")
		}
	}
	if err := st.EnsureRoles(ctx); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	if err := st.SeedAdmin(ctx, cfg.AdminPassword); err != nil {
		log.Warn().Err(err).Msg("seed admin failed")
	}
	return st, nil
}
