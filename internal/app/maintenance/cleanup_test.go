package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/storyboomai/storyboom/internal/database/testutil"
	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/services"
)

func seedWebhookEvent(t *testing.T, db *gorm.DB, eventID string, processed bool, createdAt time.Time) {
	t.Helper()

	event := models.WebhookEvent{
		EventID:   eventID,
		EventType: "checkout.session.completed",
		Processed: processed,
	}
	require.NoError(t, db.Create(&event).Error)
	require.NoError(t, db.Model(&event).Update("created_at", createdAt).Error)
}

func TestCleanupWebhookEvents(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	seedWebhookEvent(t, db, "evt_old_done", true, now.Add(-31*24*time.Hour))
	seedWebhookEvent(t, db, "evt_old_pending", false, now.Add(-31*24*time.Hour))
	seedWebhookEvent(t, db, "evt_recent_done", true, now.Add(-time.Hour))

	removed, err := CleanupWebhookEvents(context.Background(), db, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.WebhookEvent
	require.NoError(t, db.Order("event_id").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	require.Equal(t, "evt_old_pending", remaining[0].EventID)
	require.Equal(t, "evt_recent_done", remaining[1].EventID)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	user := models.User{Email: "cleanup@example.com", Password: "x", Role: models.RoleOwner}
	require.NoError(t, db.Create(&user).Error)

	company := models.Company{Name: "Cleanup Co", OwnerUserID: user.ID}
	require.NoError(t, db.Create(&company).Error)

	states, err := services.NewOAuthStateService(db,
		services.WithStateClock(func() time.Time { return now }))
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, nil,
		services.WithInviteClock(func() time.Time { return now }))
	require.NoError(t, err)

	expiredState := models.OAuthState{
		State:       "expired-state",
		UserID:      user.ID,
		Provider:    models.ProviderLinkedIn,
		RedirectURI: "https://app.example.com/cb",
		ExpiresAt:   now.Add(-time.Hour),
	}
	liveState := models.OAuthState{
		State:       "live-state",
		UserID:      user.ID,
		Provider:    models.ProviderLinkedIn,
		RedirectURI: "https://app.example.com/cb",
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expiredState).Error)
	require.NoError(t, db.Create(&liveState).Error)

	expiredInvite := models.CompanyInvite{
		Email:     "expired@example.com",
		CompanyID: company.ID,
		Role:      models.RoleEmployee,
		TokenHash: "hash-expired",
		ExpiresAt: now.Add(-time.Hour),
	}
	liveInvite := models.CompanyInvite{
		Email:     "live@example.com",
		CompanyID: company.ID,
		Role:      models.RoleEmployee,
		TokenHash: "hash-live",
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expiredInvite).Error)
	require.NoError(t, db.Create(&liveInvite).Error)

	seedWebhookEvent(t, db, "evt_stale", true, now.Add(-60*24*time.Hour))

	cleaner := NewCleaner(db, states, invites,
		WithNow(func() time.Time { return now }),
		WithWebhookRetention(30*24*time.Hour))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var stateCount, inviteCount, eventCount int64
	require.NoError(t, db.Model(&models.OAuthState{}).Count(&stateCount).Error)
	require.NoError(t, db.Model(&models.CompanyInvite{}).Count(&inviteCount).Error)
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	require.EqualValues(t, 1, stateCount)
	require.EqualValues(t, 1, inviteCount)
	require.Zero(t, eventCount)
}
