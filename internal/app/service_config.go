package app

import (
	iauth "github.com/storyboomai/storyboom/internal/auth"
	"github.com/storyboomai/storyboom/internal/billing"
	"github.com/storyboomai/storyboom/internal/oauth"
	"github.com/storyboomai/storyboom/internal/services"
	"github.com/storyboomai/storyboom/pkg/mail"
)

// JWTServiceConfig converts the auth section to the auth package representation.
func (c AuthConfig) JWTServiceConfig() iauth.JWTConfig {
	return iauth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.AccessTokenTTL,
	}
}

// StripeProviderConfig converts the billing section to the billing package representation.
func (c BillingConfig) StripeProviderConfig() billing.StripeConfig {
	return billing.StripeConfig{
		SecretKey:     c.Stripe.SecretKey,
		WebhookSecret: c.Stripe.WebhookSecret,
		CallTimeout:   c.Stripe.CallTimeout,
	}
}

// CheckoutConfig converts the billing section to the subscription service representation.
func (c BillingConfig) CheckoutConfig() services.CheckoutConfig {
	return services.CheckoutConfig{
		SubscriptionPriceID: c.Stripe.SubscriptionPriceID,
		ExtraCreditPriceID:  c.Stripe.ExtraCreditPriceID,
		SuccessURL:          c.Stripe.SuccessURL,
		CancelURL:           c.Stripe.CancelURL,
	}
}

// ProviderConfig converts one social provider section to the oauth package representation.
func (c OAuthProviderConfig) ProviderConfig() oauth.ProviderConfig {
	return oauth.ProviderConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		TenantID:     c.TenantID,
		CallTimeout:  c.CallTimeout,
	}
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
