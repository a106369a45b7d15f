package models

import "time"

// CompanyInvite grants signup-time association of a new account with an
// existing company. Consuming an invite is a one-shot transition recorded in
// AcceptedAt.
type CompanyInvite struct {
	BaseModel

	Email      string     `gorm:"not null;index" json:"email"`
	CompanyID  string     `gorm:"type:uuid;not null;index" json:"company_id"`
	Role       string     `gorm:"not null;default:employee" json:"role"`
	TokenHash  string     `gorm:"uniqueIndex;not null" json:"-"`
	InvitedBy  string     `gorm:"type:uuid" json:"invited_by"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`

	Company *Company `gorm:"constraint:OnDelete:CASCADE" json:"company,omitempty"`
}
