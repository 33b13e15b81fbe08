package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"weighbot/models"
)

// ErrExists is returned when an operator with the same username exists.
var ErrExists = errors.New("already exists")

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// EnsureRoles creates the master roles when missing.
func (s *Store) EnsureRoles(ctx context.Context) error {
	roles := []models.Role{
		{Name: models.RoleAdministrator, Description: "full access"},
		{Name: models.RoleOperator, Description: "dispatcher, read access"},
	}
	for _, r := range roles {
		if err := s.db.WithContext(ctx).Where(models.Role{Name: r.Name}).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

// CreateOperator hashes password with bcrypt and stores a new operator with roleName.
func (s *Store) CreateOperator(ctx context.Context, username, password, roleName string) (*models.Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("password too short (min 6)")
	}
	var role models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		return nil, fmt.Errorf("role %s: %w", roleName, notFound(err))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	rid := role.ID
	op := models.Operator{Username: username, HashedPassword: hashed, RoleID: &rid, Role: role}
	if err := s.db.WithContext(ctx).Omit("Role").Create(&op).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrExists
		}
		return nil, err
	}
	return &op, nil
}

// SeedAdmin creates the admin operator on first start.
func (s *Store) SeedAdmin(ctx context.Context, password string) error {
	var count int64
	s.db.WithContext(ctx).Model(&models.Operator{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return nil
	}
	if _, err := s.CreateOperator(ctx, "admin", password, models.RoleAdministrator); err != nil && !errors.Is(err, ErrExists) {
		return err
	}
	log.Info().Str("username", "admin").Msg("seeded admin operator")
	return nil
}

func (s *Store) OperatorByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var op models.Operator
	err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&op).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

func (s *Store) OperatorByID(ctx context.Context, id uint) (*models.Operator, error) {
	var op models.Operator
	if err := s.db.WithContext(ctx).Preload("Role").First(&op, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

// Authenticate checks username and password against the stored bcrypt hash.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.Operator, error) {
	op, err := s.OperatorByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(op.HashedPassword, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, operatorID uint, tokenHash string, expires time.Time) error {
	rt := models.RefreshToken{OperatorID: operatorID, TokenHash: tokenHash, ExpiresAt: expires.UTC()}
	return s.db.WithContext(ctx).Create(&rt).Error
}

func (s *Store) RefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rt).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("id = ?", id).Update("revoked", true).Error
}

// ResetPassword replaces the operator's password and revokes its refresh tokens.
func (s *Store) ResetPassword(ctx context.Context, username, password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password too short (min 6)")
	}
	op, err := s.OperatorByUsername(ctx, username)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Operator{}).Where("id = ?", op.ID).Update("hashed_password", hashed).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).Where("operator_id = ? AND revoked = ?", op.ID, false).Update("revoked", true).Error
	})
}
