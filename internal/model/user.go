package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents an end user of exactly one project
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ProjectID    string    `json:"projectId" gorm:"type:varchar(64);not null;uniqueIndex:idx_users_project_email"`
	Email        string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex:idx_users_project_email"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate assigns the user ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID(UserIDPrefix)
	}
	return nil
}
