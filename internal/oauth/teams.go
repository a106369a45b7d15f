package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// TeamsClient drives the Microsoft identity authorization-code flow and posts
// messages through the Graph API.
type TeamsClient struct {
	cfg  ProviderConfig
	http *http.Client
}

// NewTeamsClient constructs a TeamsClient from configuration.
func NewTeamsClient(cfg ProviderConfig) (*TeamsClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("teams: client id and secret are required")
	}
	if cfg.TenantID == "" {
		cfg.TenantID = "common"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email", "offline_access", "ChannelMessage.Send"}
	}

	return &TeamsClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.timeout()},
	}, nil
}

// RedirectURIs returns the registered callback URIs for host resolution.
func (c *TeamsClient) RedirectURIs() []string {
	return c.cfg.RedirectURIs
}

// AuthorizationURL builds the provider authorization URL for the given state
// and the redirect URI chosen for the initiating host.
func (c *TeamsClient) AuthorizationURL(state, redirectURI string) string {
	return c.oauthConfig(redirectURI).AuthCodeURL(state)
}

// Exchange swaps the authorization code for a token using the exact redirect
// URI stored with the state record.
func (c *TeamsClient) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := c.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("teams: exchange code: %w", err)
	}
	return token, nil
}

// UserInfo fetches the signed-in user's Graph profile.
func (c *TeamsClient) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, graphBaseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("teams: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("teams: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("teams: fetch profile failed with status %d: %s", resp.StatusCode, detail)
	}

	var me struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Mail        string `json:"mail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("teams: decode profile: %w", err)
	}

	return &Profile{Subject: me.ID, Name: me.DisplayName, Email: me.Mail}, nil
}

// PostChannelMessage publishes a message in the given team channel.
func (c *TeamsClient) PostChannelMessage(ctx context.Context, token *oauth2.Token, teamID, channelID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	body := map[string]any{
		"body": map[string]any{
			"contentType": "text",
			"content":     text,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("teams: marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/teams/%s/channels/%s/messages", graphBaseURL, teamID, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("teams: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("teams: post message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("teams: post message failed with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func (c *TeamsClient) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(c.cfg.TenantID),
		RedirectURL:  redirectURI,
		Scopes:       c.cfg.Scopes,
	}
}
