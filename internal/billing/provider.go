package billing

import (
	"context"
	"time"
)

// Payment types carried in checkout metadata.
const (
	PaymentTypeSubscription = "subscription"
	PaymentTypeExtraCredits = "extra_credits"
)

// Event types the reconciler reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.payment_succeeded"
)

// BillingReasonCycle marks an invoice raised by a subscription renewal.
const BillingReasonCycle = "subscription_cycle"

// Subscription is the provider-side view of a customer subscription.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	CreatedAt  time.Time
}

// CheckoutParams describe a new checkout session.
type CheckoutParams struct {
	CustomerID    string
	CustomerEmail string
	PriceID       string
	Quantity      int64
	PaymentType   string
	UserID        string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider-hosted payment page reference.
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is the provider-neutral form of a signed webhook delivery.
type Event struct {
	ID             string
	Type           string
	CustomerID     string
	SubscriptionID string
	BillingReason  string
	Metadata       map[string]string
}

// Provider abstracts the payment provider so the subscription reconciler can
// be exercised with fakes in tests.
type Provider interface {
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}
