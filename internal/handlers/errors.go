package handlers

import (
	"errors"
	"net/http"

	"github.com/storyboomai/storyboom/internal/services"
	appErrors "github.com/storyboomai/storyboom/pkg/errors"
)

// mapServiceError translates service sentinels into the API error vocabulary.
// Anything unrecognised becomes a 500 with the original error kept internal.
func mapServiceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, services.ErrUserNotFound):
		return appErrors.ErrNotFound.WithInternal(err)

	case errors.Is(err, services.ErrSubscriptionRequired):
		return appErrors.ErrSubscriptionRequired.WithInternal(err)
	case errors.Is(err, services.ErrInsufficientCredits):
		return appErrors.ErrInsufficientCredits.WithInternal(err)
	case errors.Is(err, services.ErrAllowanceRemaining):
		return appErrors.NewBadRequest("extra credits can only be purchased once the monthly allowance is used up").WithInternal(err)
	case errors.Is(err, services.ErrInvalidQuantity):
		return appErrors.NewBadRequest("quantity must be a positive number").WithInternal(err)

	case errors.Is(err, services.ErrDuplicateSubscription):
		return appErrors.ErrDuplicateSubscription.WithInternal(err)
	case errors.Is(err, services.ErrProviderUnavailable):
		return appErrors.ErrProviderUnavailable.WithInternal(err)

	case errors.Is(err, services.ErrStateNotFound),
		errors.Is(err, services.ErrStateExpired),
		errors.Is(err, services.ErrStateUsed),
		errors.Is(err, services.ErrStateUserMismatch):
		return appErrors.ErrInvalidOAuthState.WithInternal(err)

	case errors.Is(err, services.ErrInviteNotFound),
		errors.Is(err, services.ErrInviteExpired),
		errors.Is(err, services.ErrInviteAlreadyUsed):
		return appErrors.ErrInvalidInvite.WithInternal(err)
	case errors.Is(err, services.ErrInviteEmailInUse),
		errors.Is(err, services.ErrEmailInUse):
		return appErrors.New("EMAIL_IN_USE", "An account with this email already exists", http.StatusConflict).WithInternal(err)

	case errors.Is(err, services.ErrInvalidLogin):
		return appErrors.ErrInvalidCredentials.WithInternal(err)

	case errors.Is(err, services.ErrAccessDenied):
		return appErrors.ErrForbidden.WithInternal(err)
	case errors.Is(err, services.ErrCaseStudyNotFound):
		return appErrors.ErrNotFound.WithInternal(err)
	case errors.Is(err, services.ErrAlreadySubmitted):
		return appErrors.New("ALREADY_SUBMITTED", "This story has already been submitted", http.StatusConflict).WithInternal(err)

	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
