package models

import "time"

const (
	RoleAdministrator = "administrator"
	RoleOperator      = "operator"
)

// Role is an operator role with numeric primary key
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}
