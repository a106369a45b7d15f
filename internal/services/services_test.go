package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
)

// seedUser creates a subscribed owner account by default; mutate adjusts the
// record before it is persisted.
func seedUser(t *testing.T, db *gorm.DB, mutate func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Email:                 fmt.Sprintf("user-%s@example.com", uuid.NewString()[:8]),
		Password:              "not-a-real-hash",
		Role:                  models.RoleOwner,
		HasActiveSubscription: true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// seedCompany creates a company owned by the given user and links the owner to it.
func seedCompany(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Company {
	t.Helper()

	company := &models.Company{
		Name:        name,
		OwnerUserID: owner.ID,
	}
	require.NoError(t, db.Create(company).Error)
	require.NoError(t, db.Model(owner).Update("company_id", company.ID).Error)
	owner.CompanyID = &company.ID
	return company
}

// reloadUser fetches the current persisted state of the user.
func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return &user
}
