package model

import "time"

// ProjectSecrets holds a project's encrypted provider credentials.
// Each field is independently nullable; plaintext is never stored.
type ProjectSecrets struct {
	ProjectID              string    `json:"project_id" gorm:"primaryKey;type:varchar(64)"`
	StripeSecretEnc        *string   `json:"-" gorm:"type:text"`
	StripePublishableEnc   *string   `json:"-" gorm:"type:text"`
	StripeWebhookSecretEnc *string   `json:"-" gorm:"type:text"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// HasStripeSecret reports whether a secret key is stored
func (s *ProjectSecrets) HasStripeSecret() bool {
	return s != nil && s.StripeSecretEnc != nil && *s.StripeSecretEnc != ""
}

// HasStripePublishable reports whether a publishable key is stored
func (s *ProjectSecrets) HasStripePublishable() bool {
	return s != nil && s.StripePublishableEnc != nil && *s.StripePublishableEnc != ""
}

// HasStripeWebhookSecret reports whether a webhook signing secret is stored
func (s *ProjectSecrets) HasStripeWebhookSecret() bool {
	return s != nil && s.StripeWebhookSecretEnc != nil && *s.StripeWebhookSecretEnc != ""
}
