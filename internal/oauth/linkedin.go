package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const (
	linkedinIssuer     = "https://www.linkedin.com/oauth"
	linkedinUGCPostURL = "https://api.linkedin.com/v2/ugcPosts"
)

// Profile is the subset of provider identity needed to author posts.
type Profile struct {
	Subject string
	Name    string
	Email   string
}

// LinkedInClient drives the LinkedIn authorization-code flow and UGC posting.
type LinkedInClient struct {
	cfg  ProviderConfig
	http *http.Client

	mu       sync.Mutex
	provider *oidc.Provider
}

// NewLinkedInClient constructs a LinkedInClient from configuration.
func NewLinkedInClient(cfg ProviderConfig) (*LinkedInClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("linkedin: client id and secret are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email", "w_member_social"}
	}

	return &LinkedInClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.timeout()},
	}, nil
}

// RedirectURIs returns the registered callback URIs for host resolution.
func (c *LinkedInClient) RedirectURIs() []string {
	return c.cfg.RedirectURIs
}

// AuthorizationURL builds the provider authorization URL for the given state
// and the redirect URI chosen for the initiating host.
func (c *LinkedInClient) AuthorizationURL(state, redirectURI string) string {
	return c.oauthConfig(redirectURI).AuthCodeURL(state)
}

// Exchange swaps the authorization code for a token. The redirect URI must be
// the exact value stored with the state record; the provider rejects
// mismatches at token exchange.
func (c *LinkedInClient) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := c.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("linkedin: exchange code: %w", err)
	}
	return token, nil
}

// UserInfo fetches the member identity via the OIDC userinfo endpoint. The
// subject is the member id required to author UGC posts.
func (c *LinkedInClient) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	provider, err := c.oidcProvider(ctx)
	if err != nil {
		return nil, err
	}

	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("linkedin: fetch userinfo: %w", err)
	}

	var claims struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&claims)

	return &Profile{
		Subject: info.Subject,
		Name:    claims.Name,
		Email:   info.Email,
	}, nil
}

// SharePost publishes a text post on behalf of the member.
func (c *LinkedInClient) SharePost(ctx context.Context, token *oauth2.Token, memberID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	body := map[string]any{
		"author":         "urn:li:person:" + memberID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("linkedin: marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinUGCPostURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linkedin: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin: post share: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("linkedin: post share failed with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func (c *LinkedInClient) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     linkedin.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       c.cfg.Scopes,
	}
}

func (c *LinkedInClient) oidcProvider(ctx context.Context) (*oidc.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}

	provider, err := oidc.NewProvider(ctx, linkedinIssuer)
	if err != nil {
		return nil, fmt.Errorf("linkedin: discover oidc provider: %w", err)
	}
	c.provider = provider
	return provider, nil
}
