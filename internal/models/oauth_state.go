package models

import (
	"time"

	"gorm.io/datatypes"
)

// OAuth providers supported for social posting.
const (
	ProviderLinkedIn = "linkedin"
	ProviderTeams    = "teams"
)

// Callback response styles selectable by the initiating client.
const (
	ReturnFormatRedirect = "redirect"
	ReturnFormatJSON     = "json"
)

// OAuthState represents one in-flight third-party authorization attempt.
// It replaces cookie-session CSRF state so the callback may land on a
// different host than the one that initiated the flow.
//
// A record moves unused -> used exactly once; expired or used records fail
// validation closed and are eventually removed by the maintenance sweep.
type OAuthState struct {
	BaseModel

	State    string `gorm:"uniqueIndex;not null" json:"-"`
	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider string `gorm:"not null" json:"provider"`

	// RedirectURI is the exact registered URI used to build the authorization
	// URL. Token exchange must present the same value.
	RedirectURI string `gorm:"not null" json:"redirect_uri"`

	// Content optionally carries the pending social post so the callback can
	// publish it after the token exchange.
	Content datatypes.JSON `json:"content"`

	// FrontendCallbackURL is where the browser is sent after the flow ends.
	FrontendCallbackURL string `json:"frontend_callback_url"`

	// ReturnFormat selects the callback response style: redirect or json.
	ReturnFormat string `gorm:"default:redirect" json:"return_format"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
