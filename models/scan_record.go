package models

import (
	"time"
)

// ScanRecord is the outcome of a batch extraction over a photo archive.
type ScanRecord struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	FileName  string   `gorm:"size:255;not null;uniqueIndex"`
	StorePath string   `gorm:"column:store_path;size:512"`
	Weight    *float64 // nil until a weight was extracted
	Method    string   `gorm:"size:128"`
	RawText   string   `gorm:"type:text"`
	// kept for review instead of deleting the row
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
