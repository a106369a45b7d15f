package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/logger"
)

const (
	defaultWebhookRetention = 30 * 24 * time.Hour
	defaultStateSpec        = "@hourly"
	defaultInviteSpec       = "@daily"
	defaultWebhookSpec      = "@daily"
)

// Cleaner coordinates background maintenance tasks: purging expired OAuth
// states, removing spent invites, and pruning old webhook event records.
type Cleaner struct {
	db      *gorm.DB
	states  *services.OAuthStateService
	invites *services.InviteService
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	enabled bool

	webhookRetention time.Duration
	stateSchedule    string
	inviteSchedule   string
	webhookSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithWebhookRetention adjusts how long processed webhook events are kept.
func WithWebhookRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.webhookRetention = d
		}
	}
}

// WithStateSchedule overrides the cron specification for OAuth state cleanup.
func WithStateSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.stateSchedule = spec
		}
	}
}

// WithInviteSchedule overrides the cron specification for invite cleanup.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// WithWebhookSchedule overrides the cron specification for webhook event pruning.
func WithWebhookSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.webhookSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, states *services.OAuthStateService, invites *services.InviteService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		states:           states,
		invites:          invites,
		now:              time.Now,
		webhookRetention: defaultWebhookRetention,
		stateSchedule:    defaultStateSpec,
		inviteSchedule:   defaultInviteSpec,
		webhookSchedule:  defaultWebhookSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.states != nil || cleaner.invites != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.states != nil {
		if _, err := c.cron.AddFunc(c.stateSchedule, func() {
			ctx := context.Background()
			if _, err := c.states.CleanupExpired(ctx); err != nil {
				c.log.Warn("oauth state cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.invites != nil {
		if _, err := c.cron.AddFunc(c.inviteSchedule, func() {
			ctx := context.Background()
			if _, err := c.invites.CleanupExpired(ctx); err != nil {
				c.log.Warn("invite cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.webhookSchedule, func() {
			ctx := context.Background()
			if _, err := CleanupWebhookEvents(ctx, c.db, c.now().Add(-c.webhookRetention)); err != nil {
				c.log.Warn("webhook event cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.states != nil {
		if _, err := c.states.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.invites != nil {
		if _, err := c.invites.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupWebhookEvents(ctx, c.db, c.now().Add(-c.webhookRetention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupWebhookEvents removes processed webhook event records created before
// the cutoff. Unprocessed rows are kept so a late redelivery still finds its
// claim.
func CleanupWebhookEvents(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup webhook events: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("processed = ? AND created_at < ?", true, cutoff).
		Delete(&models.WebhookEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup webhook events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
