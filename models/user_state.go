package models

import "time"

// UserState is the dialog position of a chat. Data holds the JSON-encoded draft.
type UserState struct {
	ChatID    string    `gorm:"primaryKey;size:64"`
	State     string    `gorm:"size:64;not null"`
	Data      string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"index"`
}
