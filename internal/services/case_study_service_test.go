package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/database/testutil"
	"github.com/storyboomai/storyboom/internal/models"
)

func newCaseStudyFixture(t *testing.T) (*CaseStudyService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	credits, err := NewCreditService(db, WithMonthlyAllowance(10))
	require.NoError(t, err)
	svc, err := NewCaseStudyService(db, credits)
	require.NoError(t, err)
	return svc, db
}

func seedEmployee(t *testing.T, db *gorm.DB, companyID string) *models.User {
	t.Helper()
	return seedUser(t, db, func(u *models.User) {
		u.Role = models.RoleEmployee
		u.CompanyID = &companyID
	})
}

func TestCaseStudyService_CreateChargesCredit(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, nil)
	seedCompany(t, db, owner, "Acme")

	cs, err := svc.Create(ctx, owner, "Launch story", "")
	require.NoError(t, err)
	require.Equal(t, "Launch story", cs.Title)
	require.Equal(t, "en", cs.Language)
	require.Equal(t, owner.CompanyID, cs.CompanyID)
	require.False(t, cs.Submitted)

	require.Equal(t, 1, reloadUser(t, db, owner.ID).StoriesUsedThisMonth)
}

func TestCaseStudyService_CreateBlockedWithoutCredits(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.StoriesUsedThisMonth = 10
	})

	_, err := svc.Create(ctx, user, "One too many", "en")
	require.ErrorIs(t, err, ErrInsufficientCredits)

	// The failed charge must not leave a story behind.
	var count int64
	require.NoError(t, db.Model(&models.CaseStudy{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCaseStudyService_SubmitIsOneWay(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, nil)
	company := seedCompany(t, db, owner, "Acme")
	employee := seedEmployee(t, db, company.ID)

	cs, err := svc.Create(ctx, employee, "Field report", "en")
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, employee, cs.ID)
	require.NoError(t, err)
	require.True(t, submitted.Submitted)
	require.NotNil(t, submitted.SubmittedAt)

	_, err = svc.Submit(ctx, employee, cs.ID)
	require.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestCaseStudyService_SubmitDeniedForOwner(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, nil)
	seedCompany(t, db, owner, "Acme")

	cs, err := svc.Create(ctx, owner, "Own story", "en")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, owner, cs.ID)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestCaseStudyService_UpdateContent(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, nil)
	company := seedCompany(t, db, owner, "Acme")
	employee := seedEmployee(t, db, company.ID)

	cs, err := svc.Create(ctx, employee, "Draft", "en")
	require.NoError(t, err)

	updated, err := svc.UpdateContent(ctx, employee, cs.ID, map[string]any{
		"title":         "Polished draft",
		"final_summary": "Summary text",
		"ignored_field": "nope",
	})
	require.NoError(t, err)
	require.Equal(t, cs.ID, updated.ID)

	var current models.CaseStudy
	require.NoError(t, db.First(&current, "id = ?", cs.ID).Error)
	require.Equal(t, "Polished draft", current.Title)
	require.Equal(t, "Summary text", current.FinalSummary)

	_, err = svc.Submit(ctx, employee, cs.ID)
	require.NoError(t, err)

	// After submission the employee is locked out, the owner is not.
	_, err = svc.UpdateContent(ctx, employee, cs.ID, map[string]any{"title": "Too late"})
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.UpdateContent(ctx, owner, cs.ID, map[string]any{"title": "Owner edit"})
	require.NoError(t, err)
	require.NoError(t, db.First(&current, "id = ?", cs.ID).Error)
	require.Equal(t, "Owner edit", current.Title)
}

func TestCaseStudyService_Visibility(t *testing.T) {
	svc, db := newCaseStudyFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, nil)
	company := seedCompany(t, db, owner, "Acme")
	employee := seedEmployee(t, db, company.ID)

	ownStory, err := svc.Create(ctx, owner, "Owner story", "en")
	require.NoError(t, err)
	draft, err := svc.Create(ctx, employee, "Employee draft", "en")
	require.NoError(t, err)
	delivered, err := svc.Create(ctx, employee, "Employee delivered", "en")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, employee, delivered.ID)
	require.NoError(t, err)

	t.Run("owner list excludes drafts", func(t *testing.T) {
		items, err := svc.List(ctx, owner)
		require.NoError(t, err)
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		require.ElementsMatch(t, []string{ownStory.ID, delivered.ID}, ids)
	})

	t.Run("employee list is own content only", func(t *testing.T) {
		items, err := svc.List(ctx, employee)
		require.NoError(t, err)
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		require.ElementsMatch(t, []string{draft.ID, delivered.ID}, ids)
	})

	t.Run("get enforces the same rules", func(t *testing.T) {
		_, err := svc.Get(ctx, owner, draft.ID)
		require.ErrorIs(t, err, ErrCaseStudyNotFound)

		got, err := svc.Get(ctx, owner, delivered.ID)
		require.NoError(t, err)
		require.Equal(t, delivered.ID, got.ID)

		_, err = svc.Get(ctx, employee, ownStory.ID)
		require.ErrorIs(t, err, ErrCaseStudyNotFound)
	})
}
