package models

import "gorm.io/datatypes"

// Company groups an owner account with the employees they invited.
type Company struct {
	BaseModel

	Name        string         `gorm:"not null" json:"name"`
	OwnerUserID string         `gorm:"type:uuid;uniqueIndex;not null" json:"owner_user_id"`
	Settings    datatypes.JSON `json:"settings"`

	Users   []User          `gorm:"foreignKey:CompanyID" json:"users,omitempty"`
	Invites []CompanyInvite `gorm:"foreignKey:CompanyID" json:"invites,omitempty"`
}
