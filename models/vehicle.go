package models

import "time"

// Vehicle keeps the last known weight of a truck so the next weighing can report a difference.
type Vehicle struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	TruckNumber    string  `gorm:"size:32;not null;uniqueIndex"`
	LastWeight     float64 `gorm:"default:0"`
	LastStation    string  `gorm:"size:255"`
	LastWeighingAt *time.Time
}
