package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/pkg/crypto"
	"github.com/storyboomai/storyboom/pkg/metrics"
)

const (
	defaultStateTTL        = 10 * time.Minute
	defaultStateTokenBytes = 32
)

// OAuthStateOption customises OAuthStateService behaviour.
type OAuthStateOption func(*OAuthStateService)

// WithStateTTL overrides the state token lifetime.
func WithStateTTL(d time.Duration) OAuthStateOption {
	return func(s *OAuthStateService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithStateTokenSize adjusts the random token length in bytes.
func WithStateTokenSize(size int) OAuthStateOption {
	return func(s *OAuthStateService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithStateClock injects a custom clock primarily for testing.
func WithStateClock(clock func() time.Time) OAuthStateOption {
	return func(s *OAuthStateService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OAuthStateService issues, validates, and retires the short-lived CSRF state
// tokens used by third-party authorization-code flows. States live in the
// database instead of the session so callbacks may land on any host.
type OAuthStateService struct {
	db          *gorm.DB
	ttl         time.Duration
	tokenLength int
	now         func() time.Time
}

// NewOAuthStateService constructs an OAuthStateService.
func NewOAuthStateService(db *gorm.DB, opts ...OAuthStateOption) (*OAuthStateService, error) {
	if db == nil {
		return nil, errors.New("oauth state service: db is required")
	}

	service := &OAuthStateService{
		db:          db,
		ttl:         defaultStateTTL,
		tokenLength: defaultStateTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateStateParams describe one outbound authorization attempt.
type CreateStateParams struct {
	UserID              string
	Provider            string
	RedirectURI         string
	Content             []byte
	FrontendCallbackURL string
	ReturnFormat        string
}

// CreateState persists a new unused state record and returns the random token
// to embed in the authorization URL.
func (s *OAuthStateService) CreateState(ctx context.Context, params CreateStateParams) (string, error) {
	if params.UserID == "" {
		return "", errors.New("oauth state service: user id is required")
	}
	if params.RedirectURI == "" {
		return "", errors.New("oauth state service: redirect uri is required")
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", fmt.Errorf("oauth state service: generate token: %w", err)
	}

	record := models.OAuthState{
		State:               token,
		UserID:              params.UserID,
		Provider:            params.Provider,
		RedirectURI:         params.RedirectURI,
		FrontendCallbackURL: params.FrontendCallbackURL,
		ReturnFormat:        params.ReturnFormat,
		ExpiresAt:           s.now().UTC().Add(s.ttl),
	}
	if len(params.Content) > 0 {
		record.Content = datatypes.JSON(params.Content)
	}
	if record.ReturnFormat == "" {
		record.ReturnFormat = models.ReturnFormatRedirect
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("oauth state service: create state: %w", err)
	}

	return token, nil
}

// ValidateState looks up the record by token and checks expiry, prior use, and
// ownership without retiring it. Callbacks validate first and consume only
// after the downstream token exchange succeeds, so a transient exchange
// failure leaves the state usable for a retry.
func (s *OAuthStateService) ValidateState(ctx context.Context, token, expectedUserID string) (*models.OAuthState, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.OAuthStateResults.WithLabelValues("not_found").Inc()
		return nil, ErrStateNotFound
	}

	var record models.OAuthState
	if err := s.db.WithContext(ctx).First(&record, "state = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.OAuthStateResults.WithLabelValues("not_found").Inc()
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("oauth state service: find state: %w", err)
	}

	now := s.now().UTC()
	switch {
	case record.Used:
		metrics.OAuthStateResults.WithLabelValues("used").Inc()
		return nil, ErrStateUsed
	case now.After(record.ExpiresAt):
		metrics.OAuthStateResults.WithLabelValues("expired").Inc()
		return nil, ErrStateExpired
	case expectedUserID != "" && record.UserID != expectedUserID:
		metrics.OAuthStateResults.WithLabelValues("mismatch").Inc()
		return nil, ErrStateUserMismatch
	}

	return &record, nil
}

// ConsumeState marks the record used in a single conditional update, so two
// concurrent callbacks presenting the same token cannot both succeed.
func (s *OAuthStateService) ConsumeState(ctx context.Context, token string) error {
	result := s.db.WithContext(ctx).
		Model(&models.OAuthState{}).
		Where("state = ? AND used = ?", strings.TrimSpace(token), false).
		Update("used", true)
	if result.Error != nil {
		return fmt.Errorf("oauth state service: consume state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent callback won the conditional update.
		metrics.OAuthStateResults.WithLabelValues("used").Inc()
		return ErrStateUsed
	}

	metrics.OAuthStateResults.WithLabelValues("consumed").Inc()
	return nil
}

// ValidateAndConsume validates and retires the state in one step. Flows with a
// downstream exchange should use ValidateState and ConsumeState separately.
func (s *OAuthStateService) ValidateAndConsume(ctx context.Context, token, expectedUserID string) (*models.OAuthState, error) {
	record, err := s.ValidateState(ctx, token, expectedUserID)
	if err != nil {
		return nil, err
	}
	if err := s.ConsumeState(ctx, token); err != nil {
		return nil, err
	}
	record.Used = true
	return record, nil
}

// CleanupExpired deletes all records past their expiry regardless of used
// state. Safe to run concurrently with validation; it only removes records
// validation would already reject.
func (s *OAuthStateService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Delete(&models.OAuthState{})
	if result.Error != nil {
		return 0, fmt.Errorf("oauth state service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ResolveRedirectURI selects the registered redirect URI whose host matches
// the host the client is currently on. The provider validates token exchange
// against the same registered URI, so the choice made here must be the one
// embedded in the authorization URL.
func ResolveRedirectURI(requestHost string, configuredURIs []string) (string, error) {
	requestHost = strings.TrimSpace(requestHost)

	candidates := make([]string, 0, len(configuredURIs))
	for _, uri := range configuredURIs {
		if strings.TrimSpace(uri) != "" {
			candidates = append(candidates, strings.TrimSpace(uri))
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("oauth state service: no redirect uris configured")
	}

	for _, candidate := range candidates {
		parsed, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if strings.EqualFold(parsed.Host, requestHost) || strings.EqualFold(parsed.Hostname(), hostWithoutPort(requestHost)) {
			return candidate, nil
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	return "", fmt.Errorf("oauth state service: no redirect uri registered for host %q", requestHost)
}

func hostWithoutPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		return host[:idx]
	}
	return host
}
