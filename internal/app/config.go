package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/storyboomai/storyboom/internal/database"
)

// Config represents the runtime configuration for the StoryBoom backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Billing     BillingConfig     `mapstructure:"billing"`
	OAuth       OAuthConfig       `mapstructure:"oauth"`
	Invites     InviteConfig      `mapstructure:"invites"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig groups authentication related settings.
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig carries token issuing options.
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// BillingConfig holds the credit ledger and Stripe settings.
type BillingConfig struct {
	MonthlyStoryAllowance int          `mapstructure:"monthly_story_allowance"`
	Stripe                StripeConfig `mapstructure:"stripe"`
}

// StripeConfig carries Stripe credentials and checkout parameters.
type StripeConfig struct {
	SecretKey           string        `mapstructure:"secret_key"`
	WebhookSecret       string        `mapstructure:"webhook_secret"`
	SubscriptionPriceID string        `mapstructure:"subscription_price_id"`
	ExtraCreditPriceID  string        `mapstructure:"extra_credit_price_id"`
	SuccessURL          string        `mapstructure:"success_url"`
	CancelURL           string        `mapstructure:"cancel_url"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
}

// OAuthConfig groups social provider applications.
type OAuthConfig struct {
	LinkedIn OAuthProviderConfig `mapstructure:"linkedin"`
	Teams    OAuthProviderConfig `mapstructure:"teams"`
	StateTTL time.Duration       `mapstructure:"state_ttl"`
}

// OAuthProviderConfig configures one social provider application.
type OAuthProviderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURIs []string      `mapstructure:"redirect_uris"`
	Scopes       []string      `mapstructure:"scopes"`
	TenantID     string        `mapstructure:"tenant_id"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
}

// InviteConfig controls employee invite issuing.
type InviteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Expiry  time.Duration `mapstructure:"expiry"`
}

// EmailConfig wraps outbound mail settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig configures the SMTP mailer.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig controls the background cleanup sweeps.
type MaintenanceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	StateSchedule    string        `mapstructure:"state_schedule"`
	InviteSchedule   string        `mapstructure:"invite_schedule"`
	WebhookSchedule  string        `mapstructure:"webhook_schedule"`
	WebhookRetention time.Duration `mapstructure:"webhook_retention"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("STORYBOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/storyboom.sqlite")

	v.SetDefault("auth.jwt.issuer", "storyboom")
	v.SetDefault("auth.jwt.access_token_ttl", "24h")

	v.SetDefault("billing.monthly_story_allowance", 10)
	v.SetDefault("billing.stripe.call_timeout", "15s")

	v.SetDefault("oauth.state_ttl", "10m")
	v.SetDefault("oauth.linkedin.enabled", false)
	v.SetDefault("oauth.linkedin.scopes", []string{"openid", "profile", "email", "w_member_social"})
	v.SetDefault("oauth.linkedin.call_timeout", "15s")
	v.SetDefault("oauth.teams.enabled", false)
	v.SetDefault("oauth.teams.tenant_id", "common")
	v.SetDefault("oauth.teams.scopes", []string{"offline_access", "User.Read", "ChannelMessage.Send"})
	v.SetDefault("oauth.teams.call_timeout", "15s")

	v.SetDefault("invites.expiry", "72h")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.state_schedule", "@hourly")
	v.SetDefault("maintenance.invite_schedule", "@daily")
	v.SetDefault("maintenance.webhook_schedule", "@daily")
	v.SetDefault("maintenance.webhook_retention", "720h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate checks that settings required to boot are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		return errors.New("config: auth.jwt.secret must be set")
	}
	if c.Billing.MonthlyStoryAllowance <= 0 {
		return errors.New("config: billing.monthly_story_allowance must be positive")
	}
	return nil
}

// DatabaseSettings converts the config into the database package representation.
func (c *Config) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: c.Database.Driver,
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}

	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql":
		cfg.Host = c.Database.Postgres.Host
		cfg.Port = c.Database.Postgres.Port
		cfg.User = c.Database.Postgres.Username
		cfg.Password = c.Database.Postgres.Password
		cfg.Name = c.Database.Postgres.Database
	case "mysql", "mariadb":
		cfg.Host = c.Database.MySQL.Host
		cfg.Port = c.Database.MySQL.Port
		cfg.User = c.Database.MySQL.Username
		cfg.Password = c.Database.MySQL.Password
		cfg.Name = c.Database.MySQL.Database
	}

	return cfg
}
