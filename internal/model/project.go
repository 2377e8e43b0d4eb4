package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectMode selects which provider credentials a project bills with
type ProjectMode string

const (
	ModeSandbox ProjectMode = "sandbox"
	ModeLive    ProjectMode = "live"
)

// Project represents a tenant. All users, secrets and subscriptions are scoped to one.
type Project struct {
	ID        string            `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name      string            `json:"name" gorm:"type:varchar(80);not null"`
	Mode      ProjectMode       `json:"mode" gorm:"type:varchar(16);not null;default:'sandbox'"`
	Theme     datatypes.JSONMap `json:"theme"`
	Features  datatypes.JSONMap `json:"features"`
	CreatedAt time.Time         `json:"created_at" gorm:"index"`
}

// BeforeCreate assigns the ID and the initial mode
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID(ProjectIDPrefix)
	}
	if p.Mode == "" {
		p.Mode = ModeSandbox
	}
	return nil
}
