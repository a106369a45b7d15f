package oauth

import "time"

// ProviderConfig carries one social provider's OAuth application settings.
// RedirectURIs lists every registered callback, one per supported host; the
// state store picks the URI matching the initiating host.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURIs []string
	Scopes       []string
	TenantID     string // Teams only
	CallTimeout  time.Duration
}

const defaultCallTimeout = 15 * time.Second

func (c ProviderConfig) timeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return defaultCallTimeout
}
