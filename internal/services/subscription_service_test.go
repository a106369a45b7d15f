package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/database/testutil"
	"github.com/storyboomai/storyboom/internal/models"
)

type fakeProvider struct {
	subs      map[string][]billing.Subscription
	listErr   error
	cancelled []string
	checkouts []billing.CheckoutParams
}

func (f *fakeProvider) ListActiveSubscriptions(_ context.Context, customerID string) ([]billing.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs[customerID], nil
}

func (f *fakeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	f.cancelled = append(f.cancelled, subscriptionID)
	for customer, subs := range f.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.ID != subscriptionID {
				kept = append(kept, sub)
			}
		}
		f.subs[customer] = kept
	}
	return nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	f.checkouts = append(f.checkouts, params)
	return &billing.CheckoutSession{
		ID:  fmt.Sprintf("cs_%d", len(f.checkouts)),
		URL: "https://checkout.example.com/session",
	}, nil
}

func newSubscriptionFixture(t *testing.T) (*SubscriptionService, *fakeProvider, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	credits, err := NewCreditService(db, WithMonthlyAllowance(10))
	require.NoError(t, err)

	provider := &fakeProvider{subs: map[string][]billing.Subscription{}}
	svc, err := NewSubscriptionService(db, provider, credits, CheckoutConfig{
		SubscriptionPriceID: "price_sub",
		ExtraCreditPriceID:  "price_extra",
		SuccessURL:          "https://app.example.com/success",
		CancelURL:           "https://app.example.com/cancel",
	})
	require.NoError(t, err)

	return svc, provider, db
}

func TestSubscriptionService_ValidateBeforeCheckout(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	t.Run("local flag blocks checkout", func(t *testing.T) {
		user := seedUser(t, db, nil)
		_, err := svc.ValidateBeforeCheckout(ctx, user.ID)
		require.ErrorIs(t, err, ErrDuplicateSubscription)
	})

	t.Run("provider record blocks checkout", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.HasActiveSubscription = false
			u.StripeCustomerID = "cus_remote"
		})
		provider.subs["cus_remote"] = []billing.Subscription{{ID: "sub_1", Status: "active"}}

		_, err := svc.ValidateBeforeCheckout(ctx, user.ID)
		require.ErrorIs(t, err, ErrDuplicateSubscription)
	})

	t.Run("provider outage surfaces as unavailable", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.HasActiveSubscription = false
			u.StripeCustomerID = "cus_down"
		})
		provider.listErr = errors.New("api timeout")
		defer func() { provider.listErr = nil }()

		_, err := svc.ValidateBeforeCheckout(ctx, user.ID)
		require.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("clean account passes", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.HasActiveSubscription = false
		})
		got, err := svc.ValidateBeforeCheckout(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})
}

func TestSubscriptionService_StartCheckout(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	t.Run("subscription checkout", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.HasActiveSubscription = false
		})

		session, err := svc.StartCheckout(ctx, user.ID, billing.PaymentTypeSubscription, 0)
		require.NoError(t, err)
		require.NotEmpty(t, session.URL)

		params := provider.checkouts[len(provider.checkouts)-1]
		require.Equal(t, "price_sub", params.PriceID)
		require.Equal(t, int64(1), params.Quantity)
		require.Equal(t, user.ID, params.UserID)
	})

	t.Run("extra credits gated until allowance exhausted", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.StoriesUsedThisMonth = 4
		})

		_, err := svc.StartCheckout(ctx, user.ID, billing.PaymentTypeExtraCredits, 5)
		require.ErrorIs(t, err, ErrAllowanceRemaining)
	})

	t.Run("extra credits checkout after exhaustion", func(t *testing.T) {
		user := seedUser(t, db, func(u *models.User) {
			u.StoriesUsedThisMonth = 10
		})

		_, err := svc.StartCheckout(ctx, user.ID, billing.PaymentTypeExtraCredits, 5)
		require.NoError(t, err)

		params := provider.checkouts[len(provider.checkouts)-1]
		require.Equal(t, "price_extra", params.PriceID)
		require.Equal(t, int64(5), params.Quantity)
		require.Equal(t, billing.PaymentTypeExtraCredits, params.PaymentType)
	})

	t.Run("unknown payment type", func(t *testing.T) {
		user := seedUser(t, db, nil)
		_, err := svc.StartCheckout(ctx, user.ID, "donation", 1)
		require.Error(t, err)
	})
}

func TestSubscriptionService_HandlePaymentEvent_ActivatesSubscription(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.HasActiveSubscription = false
	})
	provider.subs["cus_1"] = []billing.Subscription{{ID: "sub_1", Status: "active", CreatedAt: time.Now()}}

	event := &billing.Event{
		ID:         "evt_1",
		Type:       billing.EventCheckoutCompleted,
		CustomerID: "cus_1",
		Metadata:   map[string]string{"user_id": user.ID, "payment_type": billing.PaymentTypeSubscription},
	}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))

	current := reloadUser(t, db, user.ID)
	require.True(t, current.HasActiveSubscription)
	require.NotNil(t, current.SubscriptionStartAt)
	require.Equal(t, "cus_1", current.StripeCustomerID)
	require.Empty(t, provider.cancelled)
}

func TestSubscriptionService_HandlePaymentEvent_CancelsDuplicatesKeepingNewest(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.HasActiveSubscription = false
		u.StripeCustomerID = "cus_dup"
	})

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	provider.subs["cus_dup"] = []billing.Subscription{
		{ID: "sub_old", Status: "active", CreatedAt: older},
		{ID: "sub_new", Status: "active", CreatedAt: newer},
	}

	event := &billing.Event{
		ID:         "evt_dup",
		Type:       billing.EventCheckoutCompleted,
		CustomerID: "cus_dup",
		Metadata:   map[string]string{"user_id": user.ID},
	}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))

	require.Equal(t, []string{"sub_old"}, provider.cancelled)
	require.True(t, reloadUser(t, db, user.ID).HasActiveSubscription)
}

func TestSubscriptionService_HandlePaymentEvent_ExtraCredits(t *testing.T) {
	svc, _, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, nil)

	event := &billing.Event{
		ID:   "evt_extra",
		Type: billing.EventCheckoutCompleted,
		Metadata: map[string]string{
			"payment_type": billing.PaymentTypeExtraCredits,
			"user_id":      user.ID,
			"quantity":     "5",
		},
	}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))
	require.Equal(t, 5, reloadUser(t, db, user.ID).ExtraCredits)

	// Redelivery of the same event id must not grant credits twice.
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))
	require.Equal(t, 5, reloadUser(t, db, user.ID).ExtraCredits)
}

func TestSubscriptionService_HandlePaymentEvent_RenewalResetsUsage(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.StripeCustomerID = "cus_renew"
		u.StoriesUsedThisMonth = 10
		u.ExtraCredits = 2
	})
	provider.subs["cus_renew"] = []billing.Subscription{{ID: "sub_r", Status: "active"}}

	event := &billing.Event{
		ID:            "evt_renew",
		Type:          billing.EventInvoicePaid,
		CustomerID:    "cus_renew",
		BillingReason: billing.BillingReasonCycle,
	}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))

	current := reloadUser(t, db, user.ID)
	require.Equal(t, 0, current.StoriesUsedThisMonth)
	require.Equal(t, 2, current.ExtraCredits)
	require.NotNil(t, current.LastCreditResetAt)
}

func TestSubscriptionService_HandlePaymentEvent_FirstInvoiceDoesNotReset(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.StripeCustomerID = "cus_first"
		u.StoriesUsedThisMonth = 3
	})
	provider.subs["cus_first"] = []billing.Subscription{{ID: "sub_f", Status: "active"}}

	event := &billing.Event{
		ID:            "evt_first",
		Type:          billing.EventInvoicePaid,
		CustomerID:    "cus_first",
		BillingReason: "subscription_create",
	}
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))
	require.Equal(t, 3, reloadUser(t, db, user.ID).StoriesUsedThisMonth)
}

func TestSubscriptionService_HandlePaymentEvent_FailedAttemptIsRetryable(t *testing.T) {
	svc, provider, db := newSubscriptionFixture(t)
	ctx := context.Background()

	user := seedUser(t, db, func(u *models.User) {
		u.HasActiveSubscription = false
		u.StripeCustomerID = "cus_retry"
	})

	event := &billing.Event{
		ID:         "evt_retry",
		Type:       billing.EventCheckoutCompleted,
		CustomerID: "cus_retry",
		Metadata:   map[string]string{"user_id": user.ID},
	}

	provider.listErr = errors.New("gateway down")
	err := svc.HandlePaymentEvent(ctx, event)
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.False(t, reloadUser(t, db, user.ID).HasActiveSubscription)

	// Provider recovers; the redelivered event must complete the work.
	provider.listErr = nil
	require.NoError(t, svc.HandlePaymentEvent(ctx, event))
	require.True(t, reloadUser(t, db, user.ID).HasActiveSubscription)
}

func TestSubscriptionService_HandlePaymentEvent_IgnoresUnknownTypes(t *testing.T) {
	svc, _, db := newSubscriptionFixture(t)

	event := &billing.Event{ID: "evt_noop", Type: "customer.updated"}
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), event))

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "even ignored events are claimed for idempotency")
}
