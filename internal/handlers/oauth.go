package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/storyboomai/storyboom/internal/models"
	"github.com/storyboomai/storyboom/internal/oauth"
	"github.com/storyboomai/storyboom/internal/services"
	appErrors "github.com/storyboomai/storyboom/pkg/errors"
	"github.com/storyboomai/storyboom/pkg/logger"
	"github.com/storyboomai/storyboom/pkg/response"
)

// socialClient is the part of a provider client the handler needs for the
// authorization flow itself. Publishing is provider specific and dispatched
// separately.
type socialClient interface {
	RedirectURIs() []string
	AuthorizationURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
}

type linkedInPublisher interface {
	socialClient
	UserInfo(ctx context.Context, token *oauth2.Token) (*oauth.Profile, error)
	SharePost(ctx context.Context, token *oauth2.Token, memberID, text string) error
}

type teamsPublisher interface {
	socialClient
	PostChannelMessage(ctx context.Context, token *oauth2.Token, teamID, channelID, text string) error
}

// OAuthHandler drives the social connection flow: initiate builds the
// authorization URL around a stored one-shot state, callback validates the
// state, exchanges the code against the stored redirect URI, retires the
// state, and optionally publishes the pending post.
type OAuthHandler struct {
	states   *services.OAuthStateService
	linkedin linkedInPublisher
	teams    teamsPublisher
	log      *zap.Logger
}

func NewOAuthHandler(states *services.OAuthStateService, linkedin *oauth.LinkedInClient, teams *oauth.TeamsClient) *OAuthHandler {
	h := &OAuthHandler{
		states: states,
		log:    logger.WithModule("oauth"),
	}
	// Assign only non-nil pointers so the interface fields stay nil for
	// providers that are not configured.
	if linkedin != nil {
		h.linkedin = linkedin
	}
	if teams != nil {
		h.teams = teams
	}
	return h
}

// postContent is the pending social post carried through the flow.
type postContent struct {
	Text      string `json:"text" validate:"max=10000"`
	TeamID    string `json:"team_id"`
	ChannelID string `json:"channel_id"`
}

type initiateRequest struct {
	Content             *postContent `json:"content"`
	FrontendCallbackURL string       `json:"frontend_callback_url" validate:"omitempty,url"`
	ReturnFormat        string       `json:"return_format" validate:"omitempty,oneof=redirect json"`
}

// Initiate starts an authorization flow for the given provider.
func (h *OAuthHandler) Initiate(c *gin.Context) {
	provider := c.Param("provider")
	client, ok := h.client(provider)
	if !ok {
		response.Error(c, appErrors.NewBadRequest("unsupported provider"))
		return
	}

	var req initiateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	redirectURI, err := services.ResolveRedirectURI(c.Request.Host, client.RedirectURIs())
	if err != nil {
		h.log.Warn("redirect uri resolution failed",
			zap.String("provider", provider),
			zap.String("host", c.Request.Host),
			zap.Error(err),
		)
		response.Error(c, appErrors.NewBadRequest("no redirect URI registered for this host"))
		return
	}

	var content []byte
	if req.Content != nil {
		content, err = json.Marshal(req.Content)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("invalid post content"))
			return
		}
	}

	state, err := h.states.CreateState(requestContext(c), services.CreateStateParams{
		UserID:              currentUserID(c),
		Provider:            provider,
		RedirectURI:         redirectURI,
		Content:             content,
		FrontendCallbackURL: req.FrontendCallbackURL,
		ReturnFormat:        req.ReturnFormat,
	})
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"authorization_url": client.AuthorizationURL(state, redirectURI),
		"state":             state,
	})
}

// Callback completes the authorization flow. The browser arrives here from
// the provider, possibly on a different host than the one that initiated, so
// identity comes from the stored state rather than a session.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	client, ok := h.client(provider)
	if !ok {
		response.Error(c, appErrors.NewBadRequest("unsupported provider"))
		return
	}

	state := c.Query("state")
	record, err := h.states.ValidateState(requestContext(c), state, "")
	if err != nil {
		h.log.Warn("state validation failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		// No trusted record to read a callback URL from, so always JSON here.
		response.Error(c, mapServiceError(err))
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.finish(c, record, "", providerErr)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.finish(c, record, "", "missing authorization code")
		return
	}

	// The state outlives a failed exchange so the user can retry; it is
	// retired only once the provider has accepted the code.
	token, err := client.Exchange(requestContext(c), code, record.RedirectURI)
	if err != nil {
		h.log.Error("token exchange failed",
			zap.String("provider", provider),
			zap.String("user_id", record.UserID),
			zap.Error(err),
		)
		h.finish(c, record, "", "token exchange failed")
		return
	}

	if err := h.states.ConsumeState(requestContext(c), state); err != nil {
		h.log.Warn("state consumption failed",
			zap.String("provider", provider),
			zap.String("user_id", record.UserID),
			zap.Error(err),
		)
		response.Error(c, mapServiceError(err))
		return
	}

	status := "connected"
	if len(record.Content) > 0 {
		if err := h.publish(c, provider, token, record.Content); err != nil {
			h.log.Error("post publishing failed",
				zap.String("provider", provider),
				zap.String("user_id", record.UserID),
				zap.Error(err),
			)
			h.finish(c, record, "", "publishing failed")
			return
		}
		status = "posted"
	}

	h.finish(c, record, status, "")
}

func (h *OAuthHandler) client(provider string) (socialClient, bool) {
	switch provider {
	case models.ProviderLinkedIn:
		if h.linkedin == nil {
			return nil, false
		}
		return h.linkedin, true
	case models.ProviderTeams:
		if h.teams == nil {
			return nil, false
		}
		return h.teams, true
	default:
		return nil, false
	}
}

func (h *OAuthHandler) publish(c *gin.Context, provider string, token *oauth2.Token, raw []byte) error {
	var content postContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return err
	}

	ctx := requestContext(c)
	switch provider {
	case models.ProviderLinkedIn:
		profile, err := h.linkedin.UserInfo(ctx, token)
		if err != nil {
			return err
		}
		return h.linkedin.SharePost(ctx, token, profile.Subject, content.Text)
	case models.ProviderTeams:
		return h.teams.PostChannelMessage(ctx, token, content.TeamID, content.ChannelID, content.Text)
	default:
		return appErrors.NewBadRequest("unsupported provider")
	}
}

// finish ends the callback either as JSON or as a redirect to the frontend,
// depending on what the initiating client asked for.
func (h *OAuthHandler) finish(c *gin.Context, record *models.OAuthState, status, errMessage string) {
	if record.ReturnFormat == models.ReturnFormatJSON || record.FrontendCallbackURL == "" {
		if errMessage != "" {
			response.Error(c, appErrors.NewBadRequest(errMessage))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": status, "provider": record.Provider})
		return
	}

	target, err := url.Parse(record.FrontendCallbackURL)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	q := target.Query()
	if errMessage != "" {
		q.Set("error", errMessage)
	} else {
		q.Set("status", status)
	}
	target.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, target.String())
}
