// Package config reads the bot configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseDSN   string
	AutoMigrate   bool
	UploadBase    string
	JWTSecret     string
	AdminPassword string

	Weight   WeightConfig
	OCR      OCRConfig
	LLM      LLMConfig
	GreenAPI GreenAPIConfig
	Telegram TelegramConfig

	RedisURL  string
	LogLevel  string
	LogFormat string
}

type WeightConfig struct {
	Min int
	Max int
}

type OCRConfig struct {
	MinConfidence   float64
	SkipOrientation bool
	TessdataPrefix  string
	Languages       []string
}

type LLMConfig struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiModel   string
	Timeout       time.Duration
}

type GreenAPIConfig struct {
	BaseURL       string
	IDInstance    string
	TokenInstance string
	WebhookToken  string
	GroupID       string
}

type TelegramConfig struct {
	Token   string
	GroupID int64
}

const defaultJWTSecret = "dev-insecure-secret-change"

// Load reads ./.env when present (variables already set win) and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", "8081"),
		DatabaseDSN:   getEnv("DB_DSN", ""),
		AutoMigrate:   getEnvAsBool("DB_AUTO_MIGRATE", true),
		UploadBase:    getEnv("UPLOAD_BASE", "uploads"),
		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		Weight: WeightConfig{
			Min: getEnvAsInt("MIN_WEIGHT", 100),
			Max: getEnvAsInt("MAX_WEIGHT", 150000),
		},
		OCR: OCRConfig{
			MinConfidence:   getEnvAsFloat("OCR_MIN_CONFIDENCE", 0.35),
			SkipOrientation: getEnvAsBool("OCR_SKIP_ORIENTATION", false),
			TessdataPrefix:  getEnv("TESSDATA_PREFIX", ""),
			Languages:       getEnvAsList("TESSERACT_LANGS", []string{"eng", "rus"}),
		},
		LLM: LLMConfig{
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 15*time.Second),
		},
		GreenAPI: GreenAPIConfig{
			BaseURL:       getEnv("GREEN_API_URL", "https://api.green-api.com"),
			IDInstance:    getEnv("GREEN_API_ID_INSTANCE", ""),
			TokenInstance: getEnv("GREEN_API_TOKEN_INSTANCE", ""),
			WebhookToken:  getEnv("GREEN_API_WEBHOOK_TOKEN", ""),
			GroupID:       getEnv("GROUP_ID", ""),
		},
		Telegram: TelegramConfig{
			Token:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			GroupID: int64(getEnvAsInt("TELEGRAM_GROUP_ID", 0)),
		},
		RedisURL:  getEnv("REDIS_URL", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate rejects combinations the bot cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Weight.Min < 0 || c.Weight.Max < 0 {
		errs = append(errs, fmt.Errorf("weight bounds must be non-negative (MIN_WEIGHT=%d MAX_WEIGHT=%d)", c.Weight.Min, c.Weight.Max))
	}
	if c.Weight.Min > c.Weight.Max {
		errs = append(errs, fmt.Errorf("MIN_WEIGHT %d is greater than MAX_WEIGHT %d", c.Weight.Min, c.Weight.Max))
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("OCR_MIN_CONFIDENCE must be in [0,1], got %v", c.OCR.MinConfidence))
	}
	return errors.Join(errs...)
}

// GreenAPIEnabled reports whether outgoing WhatsApp messages can be sent.
func (c *Config) GreenAPIEnabled() bool {
	return c.GreenAPI.IDInstance != "" && c.GreenAPI.TokenInstance != ""
}

// InsecureJWT reports whether the development fallback secret is in use.
func (c *Config) InsecureJWT() bool { return c.JWTSecret == defaultJWTSecret }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool accepts true/1/yes and false/0/no, case-insensitive.
func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '+' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
