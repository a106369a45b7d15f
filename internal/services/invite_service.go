package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/pkg/crypto"
	"github.com/storyboomai/storyboom/pkg/logger"
	"github.com/storyboomai/storyboom/pkg/mail"
)

const (
	defaultInviteExpiry     = 72 * time.Hour
	defaultInviteTokenBytes = 48
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to create invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteExpiry overrides the invite token lifetime.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService manages company invite tokens: generation, public validation,
// and one-shot redemption that links a new employee account to the company.
type InviteService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
	log         *zap.Logger
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}

	service := &InviteService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultInviteExpiry,
		tokenLength: defaultInviteTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("invites"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// GenerateInvite creates a new invite token for the provided email address and
// optionally dispatches an email.
func (s *InviteService) GenerateInvite(ctx context.Context, companyID, email, invitedBy string) (*models.CompanyInvite, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", errors.New("invite service: email is required")
	}
	if companyID == "" {
		return nil, "", errors.New("invite service: company id is required")
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", email).
		Count(&existing).Error; err != nil {
		return nil, "", fmt.Errorf("invite service: check email: %w", err)
	}
	if existing > 0 {
		return nil, "", ErrInviteEmailInUse
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invite service: generate token: %w", err)
	}

	now := s.now()
	invite := models.CompanyInvite{
		Email:     email,
		CompanyID: companyID,
		Role:      models.RoleEmployee,
		TokenHash: crypto.HashToken(rawToken),
		InvitedBy: strings.TrimSpace(invitedBy),
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, "", fmt.Errorf("invite service: create invite: %w", err)
	}

	if s.mailer != nil {
		var company models.Company
		companyName := "your team"
		if err := s.db.WithContext(ctx).First(&company, "id = ?", companyID).Error; err == nil {
			companyName = company.Name
		}

		message := mail.Message{
			To:      []string{email},
			Subject: fmt.Sprintf("You're invited to join %s on StoryBoom", companyName),
			Body:    s.inviteBody(s.inviteLink(rawToken), companyName),
		}
		// The invite row is already committed and the caller receives the
		// plaintext token, so a mail outage must not fail the call. The owner
		// can hand the link over out of band.
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			s.log.Warn("invite email delivery failed",
				zap.String("email", email),
				zap.String("company_id", companyID),
				zap.Error(mailErr),
			)
		}
	}

	return &invite, rawToken, nil
}

// InviteInfo is the public projection returned by ValidateInvite.
type InviteInfo struct {
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
}

// ValidateInvite checks a token without consuming it. Used by the public
// signup page to prefill the email and show the company name.
func (s *InviteService) ValidateInvite(ctx context.Context, token string) (*InviteInfo, error) {
	invite, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if invite.AcceptedAt != nil {
		return nil, ErrInviteAlreadyUsed
	}
	if invite.ExpiresAt.Before(s.now()) {
		return nil, ErrInviteExpired
	}

	info := &InviteInfo{Email: invite.Email}
	var company models.Company
	if err := s.db.WithContext(ctx).First(&company, "id = ?", invite.CompanyID).Error; err == nil {
		info.CompanyName = company.Name
	}

	return info, nil
}

// RedeemInvite validates the token and marks the invite as accepted. The
// returned invite carries the company the new account must be linked to.
func (s *InviteService) RedeemInvite(ctx context.Context, token string) (*models.CompanyInvite, error) {
	invite, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if invite.ExpiresAt.Before(now) {
		return nil, ErrInviteExpired
	}
	if invite.AcceptedAt != nil {
		return nil, ErrInviteAlreadyUsed
	}

	// Conditional update keeps redemption one-shot under concurrent requests.
	result := s.db.WithContext(ctx).
		Model(&models.CompanyInvite{}).
		Where("id = ? AND accepted_at IS NULL", invite.ID).
		Update("accepted_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("invite service: mark accepted: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInviteAlreadyUsed
	}

	invite.AcceptedAt = &now
	return invite, nil
}

// CleanupExpired removes expired and already-accepted invites.
func (s *InviteService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR accepted_at IS NOT NULL", s.now()).
		Delete(&models.CompanyInvite{})
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InviteService) findByToken(ctx context.Context, token string) (*models.CompanyInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.CompanyInvite
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	return &invite, nil
}

func (s *InviteService) inviteLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *InviteService) inviteBody(link, companyName string) string {
	return fmt.Sprintf("Hello,\n\nYou have been invited to join %s on StoryBoom. Use the following link to accept your invite:\n%s\n\nIf you did not expect this email, you can ignore it.\n", companyName, link)
}
