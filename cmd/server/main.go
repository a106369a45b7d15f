package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/storyboomai/storyboom/internal/api"
	"github.com/storyboomai/storyboom/internal/app"
	"github.com/storyboomai/storyboom/internal/app/maintenance"
	iauth "github.com/storyboomai/storyboom/internal/auth"
	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/database"
	"github.com/storyboomai/storyboom/internal/oauth"
	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/logger"
	"github.com/storyboomai/storyboom/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("storyboom-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := database.Open(cfg.DatabaseSettings())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDatabase(db, log)

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}

	stripeProvider, err := billing.NewStripeProvider(cfg.Billing.StripeProviderConfig())
	if err != nil {
		return fmt.Errorf("initialise stripe provider: %w", err)
	}

	creditSvc, err := services.NewCreditService(db,
		services.WithMonthlyAllowance(cfg.Billing.MonthlyStoryAllowance))
	if err != nil {
		return fmt.Errorf("initialise credit service: %w", err)
	}

	subscriptionSvc, err := services.NewSubscriptionService(db, stripeProvider, creditSvc, cfg.Billing.CheckoutConfig())
	if err != nil {
		return fmt.Errorf("initialise subscription service: %w", err)
	}

	stateOpts := []services.OAuthStateOption{}
	if cfg.OAuth.StateTTL > 0 {
		stateOpts = append(stateOpts, services.WithStateTTL(cfg.OAuth.StateTTL))
	}
	stateSvc, err := services.NewOAuthStateService(db, stateOpts...)
	if err != nil {
		return fmt.Errorf("initialise oauth state service: %w", err)
	}

	inviteOpts := []services.InviteOption{}
	if cfg.Invites.BaseURL != "" {
		inviteOpts = append(inviteOpts, services.WithInviteBaseURL(cfg.Invites.BaseURL))
	}
	if cfg.Invites.Expiry > 0 {
		inviteOpts = append(inviteOpts, services.WithInviteExpiry(cfg.Invites.Expiry))
	}
	inviteSvc, err := services.NewInviteService(db, mailer, inviteOpts...)
	if err != nil {
		return fmt.Errorf("initialise invite service: %w", err)
	}

	userSvc, err := services.NewUserService(db, inviteSvc)
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}

	caseStudySvc, err := services.NewCaseStudyService(db, creditSvc)
	if err != nil {
		return fmt.Errorf("initialise case study service: %w", err)
	}

	var linkedinClient *oauth.LinkedInClient
	if cfg.OAuth.LinkedIn.Enabled {
		linkedinClient, err = oauth.NewLinkedInClient(cfg.OAuth.LinkedIn.ProviderConfig())
		if err != nil {
			return fmt.Errorf("initialise linkedin client: %w", err)
		}
	}

	var teamsClient *oauth.TeamsClient
	if cfg.OAuth.Teams.Enabled {
		teamsClient, err = oauth.NewTeamsClient(cfg.OAuth.Teams.ProviderConfig())
		if err != nil {
			return fmt.Errorf("initialise teams client: %w", err)
		}
	}

	var cleaner *maintenance.Cleaner
	if cfg.Maintenance.Enabled {
		cleaner = maintenance.NewCleaner(db, stateSvc, inviteSvc,
			maintenance.WithStateSchedule(cfg.Maintenance.StateSchedule),
			maintenance.WithInviteSchedule(cfg.Maintenance.InviteSchedule),
			maintenance.WithWebhookSchedule(cfg.Maintenance.WebhookSchedule),
			maintenance.WithWebhookRetention(cfg.Maintenance.WebhookRetention),
		)
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(api.Dependencies{
		DB:            db,
		JWT:           jwtService,
		Users:         userSvc,
		Credits:       creditSvc,
		Subscriptions: subscriptionSvc,
		States:        stateSvc,
		Invites:       inviteSvc,
		CaseStudies:   caseStudySvc,
		Webhooks:      stripeProvider,
		LinkedIn:      linkedinClient,
		Teams:         teamsClient,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("obtain database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
