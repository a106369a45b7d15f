package services

import "github.com/storyboomai/storyboom/internal/models"

// The access gate is a set of pure decision functions consulted by every
// content-mutating and premium-feature operation. Callers must check before
// mutating; mutations that violate the gate fail with ErrAccessDenied rather
// than partially applying.

// CanGeneratePremiumContent reports whether the user may invoke premium
// generation features (video, podcast). Owner only.
func CanGeneratePremiumContent(u *models.User) bool {
	return u != nil && u.IsOwner()
}

// CanEdit reports whether the user may edit the given story. Owners may always
// edit company content; employees may edit only their own unsubmitted stories.
func CanEdit(u *models.User, cs *models.CaseStudy) bool {
	if u == nil || cs == nil {
		return false
	}
	if u.IsOwner() {
		return sameCompany(u, cs)
	}
	return cs.UserID == u.ID && !cs.Submitted
}

// CanSubmit reports whether the user may submit the given story to their
// company owner. Employees only, own unsubmitted content only.
func CanSubmit(u *models.User, cs *models.CaseStudy) bool {
	if u == nil || cs == nil || u.IsOwner() {
		return false
	}
	return cs.UserID == u.ID && !cs.Submitted
}

// CanView reports whether a single story is visible to the user: owners see
// their own stories plus submitted company stories, employees see only their
// own.
func CanView(u *models.User, cs *models.CaseStudy) bool {
	if u == nil || cs == nil {
		return false
	}
	if cs.UserID == u.ID {
		return true
	}
	return u.IsOwner() && sameCompany(u, cs) && cs.Submitted
}

func sameCompany(u *models.User, cs *models.CaseStudy) bool {
	if cs.UserID == u.ID {
		return true
	}
	if u.CompanyID == nil || cs.CompanyID == nil {
		return false
	}
	return *u.CompanyID == *cs.CompanyID
}
