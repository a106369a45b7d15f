package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/database/testutil"
	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/oauth"
	"github.com/storyboomai/storyboom/internal/services"
)

type fakeLinkedIn struct {
	exchangeErr error
	exchanges   int
	shares      int
}

func (f *fakeLinkedIn) RedirectURIs() []string {
	return []string{"https://app.example.com/api/social/linkedin/callback"}
}

func (f *fakeLinkedIn) AuthorizationURL(state, redirectURI string) string {
	return "https://provider.example.com/auth?state=" + state
}

func (f *fakeLinkedIn) Exchange(_ context.Context, code, redirectURI string) (*oauth2.Token, error) {
	f.exchanges++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "at-" + code}, nil
}

func (f *fakeLinkedIn) UserInfo(context.Context, *oauth2.Token) (*oauth.Profile, error) {
	return &oauth.Profile{Subject: "member-1"}, nil
}

func (f *fakeLinkedIn) SharePost(_ context.Context, _ *oauth2.Token, memberID, text string) error {
	f.shares++
	return nil
}

func newCallbackFixture(t *testing.T) (*gin.Engine, *services.OAuthStateService, *fakeLinkedIn, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	states, err := services.NewOAuthStateService(db)
	require.NoError(t, err)

	fake := &fakeLinkedIn{}
	handler := &OAuthHandler{states: states, linkedin: fake, log: zap.NewNop()}

	r := gin.New()
	r.GET("/api/social/:provider/callback", handler.Callback)
	return r, states, fake, db
}

func callbackRequest(t *testing.T, r *gin.Engine, state, code string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	url := fmt.Sprintf("/api/social/linkedin/callback?state=%s&code=%s", state, code)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestOAuthCallback_ExchangeFailureKeepsStateUsable(t *testing.T) {
	r, states, fake, db := newCallbackFixture(t)

	user := models.User{Email: "social@example.com", Password: "x", Role: models.RoleOwner}
	require.NoError(t, db.Create(&user).Error)

	state, err := states.CreateState(context.Background(), services.CreateStateParams{
		UserID:       user.ID,
		Provider:     models.ProviderLinkedIn,
		RedirectURI:  "https://app.example.com/api/social/linkedin/callback",
		ReturnFormat: models.ReturnFormatJSON,
	})
	require.NoError(t, err)

	fake.exchangeErr = errors.New("provider unreachable")
	rec, body := callbackRequest(t, r, state, "code-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "token exchange failed", body["error"].(map[string]any)["message"])

	// The state survives the failed exchange, so the user can retry.
	var stored models.OAuthState
	require.NoError(t, db.First(&stored, "state = ?", state).Error)
	require.False(t, stored.Used)

	fake.exchangeErr = nil
	rec, body = callbackRequest(t, r, state, "code-2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "connected", body["data"].(map[string]any)["status"])
	require.Equal(t, 2, fake.exchanges)

	require.NoError(t, db.First(&stored, "state = ?", state).Error)
	require.True(t, stored.Used)

	// Replays after a successful exchange are rejected.
	rec, body = callbackRequest(t, r, state, "code-3")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_OAUTH_STATE", body["error"].(map[string]any)["code"])
}

func TestOAuthCallback_PublishesPendingPost(t *testing.T) {
	r, states, fake, db := newCallbackFixture(t)

	user := models.User{Email: "social@example.com", Password: "x", Role: models.RoleOwner}
	require.NoError(t, db.Create(&user).Error)

	content, err := json.Marshal(postContent{Text: "Launch day!"})
	require.NoError(t, err)

	state, err := states.CreateState(context.Background(), services.CreateStateParams{
		UserID:       user.ID,
		Provider:     models.ProviderLinkedIn,
		RedirectURI:  "https://app.example.com/api/social/linkedin/callback",
		Content:      content,
		ReturnFormat: models.ReturnFormatJSON,
	})
	require.NoError(t, err)

	rec, body := callbackRequest(t, r, state, "code-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "posted", body["data"].(map[string]any)["status"])
	require.Equal(t, 1, fake.shares)
}
