package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user: not found")

	// ErrSubscriptionRequired gates story creation behind an active plan.
	ErrSubscriptionRequired = errors.New("credits: active subscription required")
	// ErrInsufficientCredits signals both budgets are exhausted.
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	// ErrAllowanceRemaining rejects extra-credit purchases while the monthly
	// allowance still has room.
	ErrAllowanceRemaining = errors.New("credits: monthly allowance not exhausted")
	// ErrInvalidQuantity rejects non-positive credit grants.
	ErrInvalidQuantity = errors.New("credits: quantity must be positive")

	// ErrDuplicateSubscription rejects checkout while a subscription is active.
	ErrDuplicateSubscription = errors.New("subscription: already active")
	// ErrProviderUnavailable wraps transient payment-provider failures so the
	// webhook response lets the provider redeliver.
	ErrProviderUnavailable = errors.New("billing: provider unavailable")

	// ErrStateNotFound indicates no OAuth state matches the presented token.
	ErrStateNotFound = errors.New("oauth state: not found")
	// ErrStateExpired indicates the state outlived its TTL.
	ErrStateExpired = errors.New("oauth state: expired")
	// ErrStateUsed indicates the state was already consumed.
	ErrStateUsed = errors.New("oauth state: already used")
	// ErrStateUserMismatch indicates the state belongs to a different account.
	ErrStateUserMismatch = errors.New("oauth state: account mismatch")

	// ErrInviteNotFound indicates no invite matches the provided token.
	ErrInviteNotFound = errors.New("invite: not found")
	// ErrInviteExpired indicates the invite token has expired.
	ErrInviteExpired = errors.New("invite: expired")
	// ErrInviteAlreadyUsed signals that the invite has already been accepted.
	ErrInviteAlreadyUsed = errors.New("invite: already accepted")
	// ErrInviteEmailInUse signals an account already exists for the email.
	ErrInviteEmailInUse = errors.New("invite: email already registered")

	// ErrAccessDenied is returned by any operation the access gate rejects.
	ErrAccessDenied = errors.New("access: denied")

	// ErrCaseStudyNotFound indicates the referenced story does not exist or is
	// not visible to the caller.
	ErrCaseStudyNotFound = errors.New("case study: not found")
	// ErrAlreadySubmitted rejects a second submission of the same story.
	ErrAlreadySubmitted = errors.New("case study: already submitted")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
