package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrInsufficientCredits signals that neither the monthly allowance nor
	// purchased extra credits have room for another story.
	ErrInsufficientCredits = &AppError{
		Code:       "INSUFFICIENT_CREDITS",
		Message:    "You have used all your stories for this month. Purchase extra credits to continue.",
		StatusCode: http.StatusPaymentRequired,
	}

	// ErrDuplicateSubscription rejects checkout attempts for customers that
	// already hold an active subscription.
	ErrDuplicateSubscription = &AppError{
		Code:       "DUPLICATE_SUBSCRIPTION",
		Message:    "You already have an active subscription",
		StatusCode: http.StatusConflict,
	}

	// ErrSubscriptionRequired gates story creation behind an active plan.
	ErrSubscriptionRequired = &AppError{
		Code:       "SUBSCRIPTION_REQUIRED",
		Message:    "An active subscription is required to create stories",
		StatusCode: http.StatusPaymentRequired,
	}

	// ErrInvalidOAuthState covers missing, expired, consumed, and mismatched
	// authorization states. Sub-causes are only distinguished in logs.
	ErrInvalidOAuthState = &AppError{
		Code:       "INVALID_OAUTH_STATE",
		Message:    "Authorization state is invalid or has expired. Please restart the connection flow.",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidInvite covers unknown, expired, and consumed invite tokens.
	ErrInvalidInvite = &AppError{
		Code:       "INVALID_INVITE",
		Message:    "Invite is invalid or has expired",
		StatusCode: http.StatusNotFound,
	}

	// ErrWebhookSignature rejects webhook deliveries whose signature does not verify.
	ErrWebhookSignature = &AppError{
		Code:       "WEBHOOK_SIGNATURE_INVALID",
		Message:    "Webhook signature verification failed",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrProviderUnavailable marks transient upstream failures (timeouts, 5xx).
	// Webhook handlers surface it so the provider's redelivery mechanism fires.
	ErrProviderUnavailable = &AppError{
		Code:       "PROVIDER_UNAVAILABLE",
		Message:    "Upstream provider is temporarily unavailable, please retry",
		StatusCode: http.StatusBadGateway,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
