package models

import "time"

// Driver is a chat participant who reports weighings. ChatID is the
// transport-level address (WhatsApp chat id or Telegram chat number).
type Driver struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ChatID        string `gorm:"size:64;not null;uniqueIndex"`
	FullName      string `gorm:"size:255"`
	PersonalPhone string `gorm:"size:64"`
	TruckNumber   string `gorm:"size:32;index"`
	IsRegistered  bool   `gorm:"default:false"`
}
