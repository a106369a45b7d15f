package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
)

// CaseStudyOption customises CaseStudyService behaviour.
type CaseStudyOption func(*CaseStudyService)

// WithCaseStudyClock injects a custom clock primarily for testing.
func WithCaseStudyClock(clock func() time.Time) CaseStudyOption {
	return func(s *CaseStudyService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// CaseStudyService owns story creation, editing, and the one-way submission
// transition. All mutations consult the access gate and the credit ledger.
type CaseStudyService struct {
	db      *gorm.DB
	credits *CreditService
	now     func() time.Time
}

// NewCaseStudyService constructs a CaseStudyService.
func NewCaseStudyService(db *gorm.DB, credits *CreditService, opts ...CaseStudyOption) (*CaseStudyService, error) {
	if db == nil {
		return nil, errors.New("case study service: db is required")
	}
	if credits == nil {
		return nil, errors.New("case study service: credit service is required")
	}

	service := &CaseStudyService{
		db:      db,
		credits: credits,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create charges one story credit and persists the new story. The charge and
// the insert share one transaction, so a failed insert never burns a credit.
func (s *CaseStudyService) Create(ctx context.Context, user *models.User, title, language string) (*models.CaseStudy, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	var created models.CaseStudy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.credits.chargeStory(tx, user.ID); err != nil {
			return err
		}

		created = models.CaseStudy{
			UserID:    user.ID,
			CompanyID: user.CompanyID,
			Title:     title,
			Language:  language,
		}
		if created.Language == "" {
			created.Language = "en"
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("case study service: create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// Get loads a story if it is visible to the user.
func (s *CaseStudyService) Get(ctx context.Context, user *models.User, id string) (*models.CaseStudy, error) {
	var cs models.CaseStudy
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseStudyNotFound
		}
		return nil, fmt.Errorf("case study service: load: %w", err)
	}

	if !CanView(user, &cs) {
		return nil, ErrCaseStudyNotFound
	}
	return &cs, nil
}

// List returns the stories visible to the user: owners see their own stories
// plus all submitted company stories, employees only their own.
func (s *CaseStudyService) List(ctx context.Context, user *models.User) ([]models.CaseStudy, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if user.IsOwner() && user.CompanyID != nil {
		query = query.Where("user_id = ? OR (company_id = ? AND submitted = ?)", user.ID, *user.CompanyID, true)
	} else {
		query = query.Where("user_id = ?", user.ID)
	}

	var studies []models.CaseStudy
	if err := query.Find(&studies).Error; err != nil {
		return nil, fmt.Errorf("case study service: list: %w", err)
	}
	return studies, nil
}

// UpdateContent applies edits if the access gate allows them. Employees lose
// edit rights after submission; the company owner keeps them.
func (s *CaseStudyService) UpdateContent(ctx context.Context, user *models.User, id string, updates map[string]any) (*models.CaseStudy, error) {
	var cs models.CaseStudy
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseStudyNotFound
		}
		return nil, fmt.Errorf("case study service: load: %w", err)
	}

	if !CanEdit(user, &cs) {
		return nil, ErrAccessDenied
	}

	allowed := map[string]any{}
	for _, field := range []string{"title", "final_summary", "linked_in_post", "language"} {
		if value, ok := updates[field]; ok {
			allowed[field] = value
		}
	}
	if len(allowed) == 0 {
		return &cs, nil
	}

	if err := s.db.WithContext(ctx).Model(&cs).Updates(allowed).Error; err != nil {
		return nil, fmt.Errorf("case study service: update: %w", err)
	}
	return &cs, nil
}

// Submit performs the one-way submitted transition. A conditional update keeps
// it one-shot under concurrent requests.
func (s *CaseStudyService) Submit(ctx context.Context, user *models.User, id string) (*models.CaseStudy, error) {
	var cs models.CaseStudy
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseStudyNotFound
		}
		return nil, fmt.Errorf("case study service: load: %w", err)
	}

	if cs.Submitted {
		return nil, ErrAlreadySubmitted
	}
	if !CanSubmit(user, &cs) {
		return nil, ErrAccessDenied
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.CaseStudy{}).
		Where("id = ? AND submitted = ?", id, false).
		Updates(map[string]any{"submitted": true, "submitted_at": now})
	if result.Error != nil {
		return nil, fmt.Errorf("case study service: submit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadySubmitted
	}

	cs.Submitted = true
	cs.SubmittedAt = &now
	return &cs, nil
}
