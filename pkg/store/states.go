package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"weighbot/models"
)

func (s *Store) State(ctx context.Context, chatID string) (*models.UserState, error) {
	var st models.UserState
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&st).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// SetState upserts the dialog state of chatID.
func (s *Store) SetState(ctx context.Context, chatID, state, data string) error {
	st := models.UserState{ChatID: chatID, State: state, Data: data, UpdatedAt: now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "data", "updated_at"}),
	}).Create(&st).Error
}

func (s *Store) ClearState(ctx context.Context, chatID string) error {
	return s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&models.UserState{}).Error
}

// PruneStates deletes dialog states not touched since before cutoff.
func (s *Store) PruneStates(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated_at < ?", cutoff.UTC()).Delete(&models.UserState{})
	return res.RowsAffected, res.Error
}
