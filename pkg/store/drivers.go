package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"weighbot/models"
)

// Driver returns the driver bound to chatID.
func (s *Store) Driver(ctx context.Context, chatID string) (*models.Driver, error) {
	var d models.Driver
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// RegisterDriver creates or overwrites the profile of chatID and marks it registered.
func (s *Store) RegisterDriver(ctx context.Context, chatID, fullName, phone, truck string) (*models.Driver, error) {
	d := models.Driver{
		ChatID:        chatID,
		FullName:      strings.TrimSpace(fullName),
		PersonalPhone: phone,
		TruckNumber:   strings.ToUpper(strings.TrimSpace(truck)),
		IsRegistered:  true,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "personal_phone", "truck_number", "is_registered", "updated_at"}),
	}).Create(&d).Error
	if err != nil {
		return nil, err
	}
	return s.Driver(ctx, chatID)
}

// UpdateTruck changes the truck a driver reports for.
func (s *Store) UpdateTruck(ctx context.Context, chatID, truck string) error {
	res := s.db.WithContext(ctx).Model(&models.Driver{}).
		Where("chat_id = ?", chatID).
		Update("truck_number", strings.ToUpper(strings.TrimSpace(truck)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Drivers lists every known driver, newest first.
func (s *Store) Drivers(ctx context.Context) ([]models.Driver, error) {
	var out []models.Driver
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&out).Error
	return out, err
}
