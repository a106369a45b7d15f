package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/pkg/metrics"
)

const defaultMonthlyAllowance = 10

// CreditOption customises CreditService behaviour.
type CreditOption func(*CreditService)

// WithMonthlyAllowance overrides the number of stories included per month.
func WithMonthlyAllowance(n int) CreditOption {
	return func(s *CreditService) {
		if n > 0 {
			s.allowance = n
		}
	}
}

// WithCreditClock injects a custom clock primarily for testing.
func WithCreditClock(clock func() time.Time) CreditOption {
	return func(s *CreditService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// CreditService is the credit ledger: it decides whether an account may create
// a new story and which budget absorbs the charge. The monthly allowance is
// always consumed before purchased extra credits.
type CreditService struct {
	db        *gorm.DB
	allowance int
	now       func() time.Time
}

// NewCreditService constructs a CreditService with the provided dependencies.
func NewCreditService(db *gorm.DB, opts ...CreditOption) (*CreditService, error) {
	if db == nil {
		return nil, errors.New("credit service: db is required")
	}

	service := &CreditService{
		db:        db,
		allowance: defaultMonthlyAllowance,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// MonthlyAllowance exposes the configured per-month story allowance.
func (s *CreditService) MonthlyAllowance() int {
	return s.allowance
}

// CanCreate reports whether the user may create another story right now.
func (s *CreditService) CanCreate(u *models.User) bool {
	if u == nil || !u.HasActiveSubscription {
		return false
	}
	return u.StoriesUsedThisMonth < s.allowance || u.ExtraCredits > 0
}

// CanPurchaseExtraCredits reports whether extra credits may be bought. Purchases
// are gated until the monthly allowance is exhausted.
func (s *CreditService) CanPurchaseExtraCredits(u *models.User) bool {
	if u == nil || !u.HasActiveSubscription {
		return false
	}
	return u.StoriesUsedThisMonth >= s.allowance
}

// NeedsSubscription reports whether the user must subscribe before creating stories.
func (s *CreditService) NeedsSubscription(u *models.User) bool {
	return u == nil || !u.HasActiveSubscription
}

// Status is a read-only projection of account state plus ledger decisions.
type Status struct {
	StoriesUsedThisMonth  int        `json:"stories_used_this_month"`
	ExtraCredits          int        `json:"extra_credits"`
	MonthlyAllowance      int        `json:"monthly_allowance"`
	StoriesRemaining      int        `json:"stories_remaining"`
	CanCreateStory        bool       `json:"can_create_story"`
	CanBuyExtraCredits    bool       `json:"can_buy_extra_credits"`
	NeedsSubscription     bool       `json:"needs_subscription"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	LastResetDate         *time.Time `json:"last_reset_date"`
}

// Status loads the account and computes its current credit standing.
func (s *CreditService) Status(ctx context.Context, userID string) (*Status, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("credit service: load user: %w", err)
	}

	remaining := s.allowance - user.StoriesUsedThisMonth
	if remaining < 0 {
		remaining = 0
	}
	remaining += user.ExtraCredits

	return &Status{
		StoriesUsedThisMonth:  user.StoriesUsedThisMonth,
		ExtraCredits:          user.ExtraCredits,
		MonthlyAllowance:      s.allowance,
		StoriesRemaining:      remaining,
		CanCreateStory:        s.CanCreate(&user),
		CanBuyExtraCredits:    s.CanPurchaseExtraCredits(&user),
		NeedsSubscription:     s.NeedsSubscription(&user),
		HasActiveSubscription: user.HasActiveSubscription,
		LastResetDate:         user.LastCreditResetAt,
	}, nil
}

// RecordCreation charges one story against the account. The monthly allowance
// is consumed first; extra credits are only drawn once the allowance is gone.
// The user row is locked for the duration of the transaction so a concurrent
// charge or reset cannot produce a lost update.
func (s *CreditService) RecordCreation(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.chargeStory(tx, userID)
	})
}

// chargeStory runs inside an existing transaction so callers can make the
// charge and their own insert atomic.
func (s *CreditService) chargeStory(tx *gorm.DB, userID string) error {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("credit service: lock user: %w", err)
	}

	if !user.HasActiveSubscription {
		return ErrSubscriptionRequired
	}

	updates := map[string]any{}
	switch {
	case user.StoriesUsedThisMonth < s.allowance:
		updates["stories_used_this_month"] = user.StoriesUsedThisMonth + 1
		metrics.StoriesCharged.WithLabelValues("allowance").Inc()
	case user.ExtraCredits > 0:
		updates["extra_credits"] = user.ExtraCredits - 1
		metrics.StoriesCharged.WithLabelValues("extra_credit").Inc()
	default:
		return ErrInsufficientCredits
	}

	if err := tx.Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("credit service: charge: %w", err)
	}
	return nil
}

// AddExtraCredits monotonically increases the purchased credit balance.
func (s *CreditService) AddExtraCredits(ctx context.Context, userID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("credit service: lock user: %w", err)
		}

		if err := tx.Model(&user).
			Update("extra_credits", user.ExtraCredits+quantity).Error; err != nil {
			return fmt.Errorf("credit service: add credits: %w", err)
		}
		return nil
	})
}

// ResetMonthlyUsage zeroes the monthly counter and stamps the reset date.
// Calling it twice within the same calendar month is a no-op the second time;
// it never touches extra credits.
func (s *CreditService) ResetMonthlyUsage(ctx context.Context, userID string) error {
	now := s.now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("credit service: lock user: %w", err)
		}

		if user.StoriesUsedThisMonth == 0 && sameResetPeriod(user.LastCreditResetAt, now) {
			return nil
		}

		if err := tx.Model(&user).Updates(map[string]any{
			"stories_used_this_month": 0,
			"last_credit_reset_at":    now,
		}).Error; err != nil {
			return fmt.Errorf("credit service: reset usage: %w", err)
		}
		return nil
	})
}

func sameResetPeriod(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	return last.Year() == now.Year() && last.Month() == now.Month()
}
