package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/storyboomai/storyboom/internal/auth"
	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/database/testutil"
	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/services"
)

type stubBillingProvider struct {
	subs []billing.Subscription
}

func (s *stubBillingProvider) ListActiveSubscriptions(context.Context, string) ([]billing.Subscription, error) {
	return s.subs, nil
}

func (s *stubBillingProvider) CancelSubscription(context.Context, string) error { return nil }

func (s *stubBillingProvider) CreateCheckoutSession(_ context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.example.com/" + params.PaymentType}, nil
}

type stubVerifier struct {
	event *billing.Event
	err   error
}

func (v *stubVerifier) VerifyWebhook([]byte, string) (*billing.Event, error) {
	return v.event, v.err
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, verifier *stubVerifier) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret"})
	require.NoError(t, err)

	credits, err := services.NewCreditService(db, services.WithMonthlyAllowance(10))
	require.NoError(t, err)

	provider := &stubBillingProvider{}
	subscriptions, err := services.NewSubscriptionService(db, provider, credits, services.CheckoutConfig{
		SubscriptionPriceID: "price_sub",
		ExtraCreditPriceID:  "price_extra",
	})
	require.NoError(t, err)

	states, err := services.NewOAuthStateService(db)
	require.NoError(t, err)

	invites, err := services.NewInviteService(db, nil)
	require.NoError(t, err)

	users, err := services.NewUserService(db, invites)
	require.NoError(t, err)

	caseStudies, err := services.NewCaseStudyService(db, credits)
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		DB:            db,
		JWT:           jwtService,
		Users:         users,
		Credits:       credits,
		Subscriptions: subscriptions,
		States:        states,
		Invites:       invites,
		CaseStudies:   caseStudies,
		Webhooks:      verifier,
	})
	require.NoError(t, err)

	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope apiEnvelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func registerOwner(t *testing.T, router *gin.Engine, email string) string {
	t.Helper()

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":        email,
		"password":     "s3cret-passw0rd",
		"company_name": "Acme Stories",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRouter_RegisterLoginAndCreditStatus(t *testing.T) {
	router, _ := newTestRouter(t, &stubVerifier{})

	token := registerOwner(t, router, "founder@example.com")

	rec, _ := doJSON(t, router, http.MethodGet, "/api/credits/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodGet, "/api/credits/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		MonthlyAllowance  int  `json:"monthly_allowance"`
		NeedsSubscription bool `json:"needs_subscription"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &status))
	require.Equal(t, 10, status.MonthlyAllowance)
	require.True(t, status.NeedsSubscription)

	rec, envelope = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "founder@example.com",
		"password": "s3cret-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, envelope.Success)

	rec, envelope = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "founder@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_CREDENTIALS", envelope.Error.Code)
}

func TestRouter_WebhookDeliveries(t *testing.T) {
	verifier := &stubVerifier{}
	router, db := newTestRouter(t, verifier)

	registerOwner(t, router, "founder@example.com")
	var user models.User
	require.NoError(t, db.First(&user, "email = ?", "founder@example.com").Error)

	t.Run("bad signature is rejected", func(t *testing.T) {
		verifier.err = errors.New("signature mismatch")
		rec, envelope := doJSON(t, router, http.MethodPost, "/api/billing/webhook", "", gin.H{})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "WEBHOOK_SIGNATURE_INVALID", envelope.Error.Code)
	})

	t.Run("extra credit purchase is applied once", func(t *testing.T) {
		verifier.err = nil
		verifier.event = &billing.Event{
			ID:   "evt_router_1",
			Type: billing.EventCheckoutCompleted,
			Metadata: map[string]string{
				"payment_type": billing.PaymentTypeExtraCredits,
				"user_id":      user.ID,
				"quantity":     "3",
			},
		}

		for i := 0; i < 2; i++ {
			rec, _ := doJSON(t, router, http.MethodPost, "/api/billing/webhook", "", gin.H{})
			require.Equal(t, http.StatusOK, rec.Code)
		}

		var current models.User
		require.NoError(t, db.First(&current, "id = ?", user.ID).Error)
		require.Equal(t, 3, current.ExtraCredits)
	})
}

func TestRouter_InviteSignupFlow(t *testing.T) {
	router, _ := newTestRouter(t, &stubVerifier{})

	ownerToken := registerOwner(t, router, "founder@example.com")

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/invites", ownerToken, gin.H{
		"email": "hire@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	require.NotEmpty(t, created.Token)

	rec, envelope = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/invites/validate?token=%s", created.Token), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Valid       bool   `json:"valid"`
		Email       string `json:"email"`
		CompanyName string `json:"company_name"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &info))
	require.True(t, info.Valid)
	require.Equal(t, "hire@example.com", info.Email)
	require.Equal(t, "Acme Stories", info.CompanyName)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/auth/register/employee", "", gin.H{
		"invite_token": created.Token,
		"password":     "s3cret-passw0rd",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Employees may not issue invites.
	rec, envelope = doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "hire@example.com",
		"password": "s3cret-passw0rd",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &login))

	rec, _ = doJSON(t, router, http.MethodPost, "/api/invites", login.Token, gin.H{
		"email": "another@example.com",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_CaseStudyFlowRequiresSubscription(t *testing.T) {
	router, db := newTestRouter(t, &stubVerifier{})

	token := registerOwner(t, router, "founder@example.com")

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/case-studies", token, gin.H{
		"title": "First story",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "SUBSCRIPTION_REQUIRED", envelope.Error.Code)

	require.NoError(t, db.Model(&models.User{}).
		Where("email = ?", "founder@example.com").
		Update("has_active_subscription", true).Error)

	rec, envelope = doJSON(t, router, http.MethodPost, "/api/case-studies", token, gin.H{
		"title": "First story",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.CaseStudy
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	require.Equal(t, "First story", created.Title)

	rec, envelope = doJSON(t, router, http.MethodGet, "/api/case-studies", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.CaseStudy
	require.NoError(t, json.Unmarshal(envelope.Data, &list))
	require.Len(t, list, 1)
}
