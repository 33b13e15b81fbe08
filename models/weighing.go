package models

import "time"

// Weighing is one confirmed scale reading.
type Weighing struct {
	ID               uint      `gorm:"primaryKey"`
	CreatedAt        time.Time `gorm:"index"`
	DriverChatID     string    `gorm:"size:64;index;not null"`
	TruckNumber      string    `gorm:"size:32;index;not null"`
	DriverName       string    `gorm:"size:255"`
	ClientName       string    `gorm:"size:255"`
	PreviousWeight   float64
	CurrentWeight    float64 `gorm:"not null"`
	WeightDifference float64
	StationName      string `gorm:"size:255"`
	PhotoPath        string `gorm:"size:512"`
	ManualInput      bool   `gorm:"default:false"`
	OCRMethod        string `gorm:"size:128"`
}
