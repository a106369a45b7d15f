package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const defaultCallTimeout = 15 * time.Second

// StripeConfig carries the credentials for the Stripe client.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	CallTimeout   time.Duration
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

// NewStripeProvider constructs a StripeProvider from configuration.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
	}, nil
}

// ListActiveSubscriptions returns every active subscription for the customer,
// newest first.
func (p *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var subs []Subscription
	iter := p.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		item := Subscription{
			ID:        sub.ID,
			Status:    string(sub.Status),
			CreatedAt: time.Unix(sub.Created, 0).UTC(),
		}
		if sub.Customer != nil {
			item.CustomerID = sub.Customer.ID
		}
		subs = append(subs, item)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list subscriptions: %w", err)
	}

	return subs, nil
}

// CancelSubscription cancels the subscription immediately.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := p.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe: cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// CreateCheckoutSession creates a hosted checkout page for a subscription or
// an extra-credit purchase.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	quantity := cp.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	mode := stripe.CheckoutSessionModePayment
	if cp.PaymentType == PaymentTypeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
	}
	params.Context = ctx
	if cp.CustomerID != "" {
		params.Customer = stripe.String(cp.CustomerID)
	} else if cp.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(cp.CustomerEmail)
	}
	params.AddMetadata("user_id", cp.UserID)
	params.AddMetadata("payment_type", cp.PaymentType)
	params.AddMetadata("quantity", strconv.FormatInt(quantity, 10))

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook checks the delivery signature and converts the payload into a
// provider-neutral Event. Verification failure is fatal for the request; no
// state is mutated for unsigned payloads.
func (p *StripeProvider) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signatureHeader, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe: verify webhook signature: %w", err)
	}
	return convertEvent(stripeEvent)
}

func convertEvent(stripeEvent stripe.Event) (*Event, error) {
	event := &Event{
		ID:       stripeEvent.ID,
		Type:     string(stripeEvent.Type),
		Metadata: map[string]string{},
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		if session.Customer != nil {
			event.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			event.SubscriptionID = session.Subscription.ID
		}
		for k, v := range session.Metadata {
			event.Metadata[k] = v
		}

	case EventInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("stripe: decode invoice: %w", err)
		}
		if invoice.Customer != nil {
			event.CustomerID = invoice.Customer.ID
		}
		if invoice.Subscription != nil {
			event.SubscriptionID = invoice.Subscription.ID
		}
		event.BillingReason = string(invoice.BillingReason)
		if invoice.SubscriptionDetails != nil {
			for k, v := range invoice.SubscriptionDetails.Metadata {
				event.Metadata[k] = v
			}
		}
	}

	return event, nil
}
