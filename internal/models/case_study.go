package models

import "time"

// CaseStudy is the billable unit of work: one generated business story.
// Submission is a one-way transition; once an employee submits, only the
// company owner may keep editing.
type CaseStudy struct {
	BaseModel

	UserID    string  `gorm:"type:uuid;not null;index" json:"user_id"`
	CompanyID *string `gorm:"type:uuid;index" json:"company_id"`

	Title        string `json:"title"`
	FinalSummary string `json:"final_summary"`
	LinkedInPost string `json:"linkedin_post"`
	Language     string `gorm:"default:en" json:"language"`

	Submitted   bool       `gorm:"default:false;index" json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at"`

	User    *User    `json:"user,omitempty"`
	Company *Company `json:"company,omitempty"`
}
