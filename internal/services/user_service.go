package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/pkg/crypto"
)

// ErrEmailInUse signals an account already exists for the email.
var ErrEmailInUse = errors.New("user: email already registered")

// ErrInvalidLogin covers unknown email and wrong password uniformly.
var ErrInvalidLogin = errors.New("user: invalid credentials")

// UserService handles account registration and authentication.
type UserService struct {
	db      *gorm.DB
	invites *InviteService
	now     func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, invites *InviteService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}

	return &UserService{
		db:      db,
		invites: invites,
		now:     time.Now,
	}, nil
}

// RegisterOwnerParams describe a new owner signup.
type RegisterOwnerParams struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	CompanyName string
}

// RegisterOwner creates a new owner account and its company in one transaction.
func (s *UserService) RegisterOwner(ctx context.Context, params RegisterOwnerParams) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || params.Password == "" {
		return nil, errors.New("user service: email and password are required")
	}

	hashed, err := crypto.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := models.User{
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(params.FirstName),
		LastName:  strings.TrimSpace(params.LastName),
		Role:      models.RoleOwner,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailInUse
			}
			return fmt.Errorf("user service: create user: %w", err)
		}

		companyName := strings.TrimSpace(params.CompanyName)
		if companyName == "" {
			companyName = email
		}
		company := models.Company{
			Name:        companyName,
			OwnerUserID: user.ID,
		}
		if err := tx.Create(&company).Error; err != nil {
			return fmt.Errorf("user service: create company: %w", err)
		}

		if err := tx.Model(&user).Update("company_id", company.ID).Error; err != nil {
			return fmt.Errorf("user service: link company: %w", err)
		}
		user.CompanyID = &company.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// RegisterEmployee redeems an invite token and creates the employee account
// linked to the inviting company. The invite consumption and the account
// creation share a transaction, so a failed signup does not burn the invite.
func (s *UserService) RegisterEmployee(ctx context.Context, token, password, firstName, lastName string) (*models.User, error) {
	if s.invites == nil {
		return nil, errors.New("user service: invite service is required for employee signup")
	}
	if password == "" {
		return nil, errors.New("user service: password is required")
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &InviteService{
			db:          tx,
			expiry:      s.invites.expiry,
			tokenLength: s.invites.tokenLength,
			now:         s.invites.now,
		}
		invite, err := scoped.RedeemInvite(ctx, token)
		if err != nil {
			return err
		}

		user = models.User{
			Email:     invite.Email,
			Password:  hashed,
			FirstName: strings.TrimSpace(firstName),
			LastName:  strings.TrimSpace(lastName),
			Role:      models.RoleEmployee,
			CompanyID: &invite.CompanyID,
		}
		if err := tx.Create(&user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailInUse
			}
			return fmt.Errorf("user service: create employee: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Authenticate verifies the email/password pair and stamps the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, ErrInvalidLogin
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("user service: stamp login: %w", err)
	}
	user.LastLoginAt = &now

	return &user, nil
}

// GetByID loads a user by primary key.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}
