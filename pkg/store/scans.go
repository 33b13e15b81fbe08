package store

import (
	"context"

	"gorm.io/gorm/clause"

	"weighbot/models"
)

// SaveScanRecord inserts or replaces the record keyed by FileName.
func (s *Store) SaveScanRecord(ctx context.Context, r *models.ScanRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"store_path", "weight", "method", "raw_text", "failed", "failed_reason", "updated_at"}),
	}).Create(r).Error
}

func (s *Store) ScanRecordByFile(ctx context.Context, fileName string) (*models.ScanRecord, error) {
	var r models.ScanRecord
	if err := s.db.WithContext(ctx).Where("file_name = ?", fileName).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// FailedScanRecords returns records without a weight, oldest first.
func (s *Store) FailedScanRecords(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	var out []models.ScanRecord
	err := s.db.WithContext(ctx).
		Where("failed = ? OR weight IS NULL", true).
		Order("id asc").
		Limit(clampLimit(limit, 100, 10000)).
		Find(&out).Error
	return out, err
}

// ScannedFiles returns the file names that already carry a weight.
func (s *Store) ScannedFiles(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.ScanRecord{}).
		Where("failed = ? AND weight IS NOT NULL", false).
		Pluck("file_name", &out).Error
	return out, err
}
