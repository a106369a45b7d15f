package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/pkg/logger"
	"github.com/storyboomai/storyboom/pkg/metrics"
)

// CheckoutConfig carries the provider price identifiers and return URLs used
// when creating checkout sessions.
type CheckoutConfig struct {
	SubscriptionPriceID string
	ExtraCreditPriceID  string
	SuccessURL          string
	CancelURL           string
}

// SubscriptionOption customises SubscriptionService behaviour.
type SubscriptionOption func(*SubscriptionService)

// WithSubscriptionClock injects a custom clock primarily for testing.
func WithSubscriptionClock(clock func() time.Time) SubscriptionOption {
	return func(s *SubscriptionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SubscriptionService keeps "at most one active subscription per customer"
// true, compensating for races between client-initiated checkout and
// asynchronous webhook delivery.
type SubscriptionService struct {
	db       *gorm.DB
	provider billing.Provider
	credits  *CreditService
	checkout CheckoutConfig
	now      func() time.Time
	log      *zap.Logger
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, provider billing.Provider, credits *CreditService, checkout CheckoutConfig, opts ...SubscriptionOption) (*SubscriptionService, error) {
	if db == nil {
		return nil, errors.New("subscription service: db is required")
	}
	if provider == nil {
		return nil, errors.New("subscription service: billing provider is required")
	}
	if credits == nil {
		return nil, errors.New("subscription service: credit service is required")
	}

	service := &SubscriptionService{
		db:       db,
		provider: provider,
		credits:  credits,
		checkout: checkout,
		now:      time.Now,
		log:      logger.WithModule("subscription"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// ValidateBeforeCheckout fails with ErrDuplicateSubscription when either the
// local flag or the provider's authoritative subscription list shows an
// existing active subscription. The remote read exists because the local flag
// can be stale.
func (s *SubscriptionService) ValidateBeforeCheckout(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("subscription service: load user: %w", err)
	}

	if user.HasActiveSubscription {
		return nil, ErrDuplicateSubscription
	}

	if user.StripeCustomerID != "" {
		subs, err := s.provider.ListActiveSubscriptions(ctx, user.StripeCustomerID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if len(subs) > 0 {
			return nil, ErrDuplicateSubscription
		}
	}

	return &user, nil
}

// StartCheckout validates the purchase and creates a provider checkout session.
func (s *SubscriptionService) StartCheckout(ctx context.Context, userID, paymentType string, quantity int) (*billing.CheckoutSession, error) {
	var (
		user *models.User
		err  error
	)

	switch paymentType {
	case billing.PaymentTypeSubscription:
		user, err = s.ValidateBeforeCheckout(ctx, userID)
		if err != nil {
			return nil, err
		}
	case billing.PaymentTypeExtraCredits:
		var u models.User
		if dbErr := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; dbErr != nil {
			if errors.Is(dbErr, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("subscription service: load user: %w", dbErr)
		}
		if !s.credits.CanPurchaseExtraCredits(&u) {
			return nil, ErrAllowanceRemaining
		}
		user = &u
	default:
		return nil, fmt.Errorf("subscription service: unknown payment type %q", paymentType)
	}

	priceID := s.checkout.SubscriptionPriceID
	if paymentType == billing.PaymentTypeExtraCredits {
		priceID = s.checkout.ExtraCreditPriceID
	}
	if quantity <= 0 {
		quantity = 1
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID:    user.StripeCustomerID,
		CustomerEmail: user.Email,
		PriceID:       priceID,
		Quantity:      int64(quantity),
		PaymentType:   paymentType,
		UserID:        user.ID,
		SuccessURL:    s.checkout.SuccessURL,
		CancelURL:     s.checkout.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return session, nil
}

// HandleExtraCreditPurchase adds quantity to the user's purchased credits.
// Independent of subscription state.
func (s *SubscriptionService) HandleExtraCreditPurchase(ctx context.Context, userID string, quantity int) error {
	return s.credits.AddExtraCredits(ctx, userID, quantity)
}

// HandlePaymentEvent processes a verified webhook event. The event id is
// claimed in the webhook_events table before any mutation; a redelivery of an
// already-processed event is a no-op success.
//
// Transient provider failures leave the claim unprocessed and return
// ErrProviderUnavailable so the caller answers with a failure status and the
// provider's own redelivery fires again.
func (s *SubscriptionService) HandlePaymentEvent(ctx context.Context, event *billing.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("subscription service: event id is required")
	}

	claimed, err := s.claimEvent(ctx, event)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info("webhook event already processed", zap.String("event_id", event.ID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		return nil
	}

	if err := s.applyEvent(ctx, event); err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		return err
	}

	if err := s.markProcessed(ctx, event.ID); err != nil {
		return err
	}
	metrics.WebhookEvents.WithLabelValues(event.Type, "processed").Inc()
	return nil
}

// claimEvent records the event id. It returns false when the event was already
// fully processed; an unprocessed existing claim (earlier attempt failed
// mid-flight) is re-claimed so redelivery can finish the work.
func (s *SubscriptionService) claimEvent(ctx context.Context, event *billing.Event) (bool, error) {
	record := models.WebhookEvent{
		EventID:   event.ID,
		EventType: event.Type,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("subscription service: claim event: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var existing models.WebhookEvent
	if err := s.db.WithContext(ctx).
		First(&existing, "event_id = ?", event.ID).Error; err != nil {
		return false, fmt.Errorf("subscription service: load event claim: %w", err)
	}
	return !existing.Processed, nil
}

func (s *SubscriptionService) markProcessed(ctx context.Context, eventID string) error {
	now := s.now().UTC()
	err := s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{"processed": true, "processed_at": now}).Error
	if err != nil {
		return fmt.Errorf("subscription service: mark event processed: %w", err)
	}
	return nil
}

func (s *SubscriptionService) applyEvent(ctx context.Context, event *billing.Event) error {
	paymentType := event.Metadata["payment_type"]

	if paymentType == billing.PaymentTypeExtraCredits {
		return s.applyExtraCreditEvent(ctx, event)
	}

	switch event.Type {
	case billing.EventCheckoutCompleted, billing.EventInvoicePaid:
		return s.reconcileSubscription(ctx, event)
	default:
		s.log.Debug("ignoring webhook event type", zap.String("type", event.Type))
		return nil
	}
}

func (s *SubscriptionService) applyExtraCreditEvent(ctx context.Context, event *billing.Event) error {
	userID := event.Metadata["user_id"]
	if userID == "" {
		return errors.New("subscription service: extra credit event missing user_id metadata")
	}

	quantity, err := strconv.Atoi(event.Metadata["quantity"])
	if err != nil || quantity <= 0 {
		return fmt.Errorf("subscription service: extra credit event has invalid quantity %q", event.Metadata["quantity"])
	}

	if err := s.credits.AddExtraCredits(ctx, userID, quantity); err != nil {
		return err
	}

	s.log.Info("extra credits granted",
		zap.String("user_id", userID),
		zap.Int("quantity", quantity),
		zap.String("event_id", event.ID))
	return nil
}

// reconcileSubscription converges the customer back to exactly one active
// subscription (the most recently created) and flips the local flag for the
// surviving subscription's owner.
func (s *SubscriptionService) reconcileSubscription(ctx context.Context, event *billing.Event) error {
	user, err := s.resolveUser(ctx, event)
	if err != nil {
		return err
	}

	subs, err := s.provider.ListActiveSubscriptions(ctx, event.CustomerID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if len(subs) > 1 {
		sort.Slice(subs, func(i, j int) bool {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		})
		for _, stale := range subs[1:] {
			if err := s.provider.CancelSubscription(ctx, stale.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			metrics.SubscriptionsCancelled.Inc()
			s.log.Warn("cancelled duplicate subscription",
				zap.String("subscription_id", stale.ID),
				zap.String("customer_id", event.CustomerID))
		}
	}

	now := s.now().UTC()
	updates := map[string]any{
		"has_active_subscription": true,
	}
	if !user.HasActiveSubscription {
		updates["subscription_start_at"] = now
	}
	if user.StripeCustomerID == "" && event.CustomerID != "" {
		updates["stripe_customer_id"] = event.CustomerID
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("subscription service: activate subscription: %w", err)
	}

	// Renewal invoices reset the monthly allowance on the user's own billing
	// cycle; there is no fleet-wide scheduled reset.
	if event.Type == billing.EventInvoicePaid && event.BillingReason == billing.BillingReasonCycle {
		if err := s.credits.ResetMonthlyUsage(ctx, user.ID); err != nil {
			return err
		}
		s.log.Info("monthly usage reset on renewal", zap.String("user_id", user.ID))
	}

	return nil
}

func (s *SubscriptionService) resolveUser(ctx context.Context, event *billing.Event) (*models.User, error) {
	var user models.User

	if userID := event.Metadata["user_id"]; userID != "" {
		if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err == nil {
			return &user, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription service: load user: %w", err)
		}
	}

	if event.CustomerID != "" {
		if err := s.db.WithContext(ctx).
			First(&user, "stripe_customer_id = ?", event.CustomerID).Error; err == nil {
			return &user, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("subscription service: load user by customer: %w", err)
		}
	}

	return nil, ErrUserNotFound
}
