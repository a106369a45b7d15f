package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/storyboomai/storyboom/internal/auth"
	"github.com/storyboomai/storyboom/internal/handlers"
	"github.com/storyboomai/storyboom/internal/middleware"
	"github.com/storyboomai/storyboom/internal/oauth"
	"github.com/storyboomai/storyboom/internal/services"
)

// Dependencies carries everything the router needs to wire up handlers.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Users         *services.UserService
	Credits       *services.CreditService
	Subscriptions *services.SubscriptionService
	States        *services.OAuthStateService
	Invites       *services.InviteService
	CaseStudies   *services.CaseStudyService
	Webhooks      handlers.WebhookVerifier
	LinkedIn      *oauth.LinkedInClient
	Teams         *oauth.TeamsClient
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT)
	inviteHandler := handlers.NewInviteHandler(deps.Invites, deps.Users)
	creditHandler := handlers.NewCreditHandler(deps.Credits)
	billingHandler := handlers.NewBillingHandler(deps.Subscriptions, deps.Webhooks)
	oauthHandler := handlers.NewOAuthHandler(deps.States, deps.LinkedIn, deps.Teams)
	caseStudyHandler := handlers.NewCaseStudyHandler(deps.CaseStudies, deps.Users)

	// Public routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.RegisterOwner)
		auth.POST("/register/employee", authHandler.RegisterEmployee)
		auth.POST("/login", authHandler.Login)
	}
	r.GET("/api/invites/validate", inviteHandler.Validate)
	r.POST("/api/billing/webhook", billingHandler.Webhook)
	r.GET("/api/social/:provider/callback", oauthHandler.Callback)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	api.GET("/auth/me", authHandler.Me)
	api.GET("/credits/status", creditHandler.Status)
	api.POST("/billing/checkout", billingHandler.Checkout)
	api.POST("/invites", inviteHandler.Create)
	api.POST("/social/:provider/initiate", oauthHandler.Initiate)

	stories := api.Group("/case-studies")
	{
		stories.POST("", caseStudyHandler.Create)
		stories.GET("", caseStudyHandler.List)
		stories.GET("/:id", caseStudyHandler.Get)
		stories.PUT("/:id", caseStudyHandler.Update)
		stories.POST("/:id/submit", caseStudyHandler.Submit)
	}

	return r, nil
}
