package handler

import (
	"github.com/leephanna/sign-in-and-billing/internal/billing"
	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/identity"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"gorm.io/gorm"
)

// Handler serves the HTTP API on top of the core services
type Handler struct {
	cfg       *config.Config
	db        *gorm.DB
	directory *directory.Directory
	identity  *identity.Service
	billing   *billing.Reconciler
}

// New creates a Handler
func New(cfg *config.Config, db *gorm.DB, dir *directory.Directory, ids *identity.Service, rec *billing.Reconciler) *Handler {
	return &Handler{
		cfg:       cfg,
		db:        db,
		directory: dir,
		identity:  ids,
		billing:   rec,
	}
}
