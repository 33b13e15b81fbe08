// Package store persists drivers, vehicles, weighings and dialog state through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weighbot/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const DefaultSQLitePath = "data/weighbot.db"

type Store struct {
	db *gorm.DB
}

// IsPostgres reports whether dsn addresses a postgres server rather than a sqlite file.
func IsPostgres(dsn string) bool {
	d := strings.TrimSpace(dsn)
	return strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") || strings.Contains(d, "host=")
}

// Open connects to postgres or opens a sqlite file, depending on dsn.
// An empty dsn opens DefaultSQLitePath.
func Open(dsn string) (*Store, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	var dialector gorm.Dialector
	if IsPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !IsPostgres(dsn) {
		// one writer at a time for sqlite
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates every table. Models are migrated one by one so a
// failure on one (for example missing permissions) does not block the others;
// failures are logged and the first one is returned.
func (s *Store) Migrate() error {
	var first error
	for _, m := range []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"operators", &models.Operator{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"drivers", &models.Driver{}},
		{"vehicles", &models.Vehicle{}},
		{"weighings", &models.Weighing{}},
		{"user_states", &models.UserState{}},
		{"scan_records", &models.ScanRecord{}},
	} {
		if err := s.db.AutoMigrate(m.model); err != nil {
			log.Warn().Err(err).Str("table", m.table).Msg("migration warning")
			if first == nil {
				first = fmt.Errorf("migrate %s: %w", m.table, err)
			}
		}
	}
	return first
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// IsUniqueConstraintError reports whether err came from a unique index violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "UNIQUE constraint") || strings.Contains(s, "already exists")
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func now() time.Time { return time.Now().UTC() }
