package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role identifies what a user may do within their company.
const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

// User describes a billable account, either a company owner or an invited employee.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Role      string   `gorm:"not null;default:owner" json:"role"`
	CompanyID *string  `gorm:"type:uuid;index" json:"company_id"`
	Company   *Company `json:"company,omitempty"`

	// Billing state owned by the credit ledger and subscription reconciler.
	StripeCustomerID      string     `gorm:"index" json:"-"`
	HasActiveSubscription bool       `gorm:"default:false" json:"has_active_subscription"`
	SubscriptionStartAt   *time.Time `json:"subscription_start_at"`
	StoriesUsedThisMonth  int        `gorm:"default:0" json:"stories_used_this_month"`
	ExtraCredits          int        `gorm:"default:0" json:"extra_credits"`
	LastCreditResetAt     *time.Time `json:"last_credit_reset_at"`

	CaseStudies []CaseStudy `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsOwner reports whether the user holds the owner role for their company.
func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}
