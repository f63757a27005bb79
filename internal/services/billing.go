package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

// Customer is the slice of a billing-provider customer this service needs.
type Customer struct {
	ID    string
	Email string
}

// BillingProvider answers the two questions the link flow asks Stripe:
// who owns this email, and do they pay us.
type BillingProvider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	HasActiveSubscription(ctx context.Context, customerID string) (bool, error)
}

// StripeBilling implements BillingProvider against the Stripe API.
type StripeBilling struct {
	api *client.API
	log *zap.Logger
}

// NewStripeBilling builds a Stripe client with a bounded HTTP timeout so a
// slow provider fails the request instead of hanging it.
func NewStripeBilling(apiKey string, timeout time.Duration, log *zap.Logger) *StripeBilling {
	httpClient := &http.Client{Timeout: timeout}
	api := &client.API{}
	api.Init(apiKey, stripe.NewBackends(httpClient))
	return &StripeBilling{api: api, log: log}
}

// FindCustomerByEmail returns the first customer matching the email, or nil
// when Stripe knows nobody by that address.
func (b *StripeBilling) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := b.api.Customers.List(params)
	for it.Next() {
		c := it.Customer()
		return &Customer{ID: c.ID, Email: c.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe customer lookup: %w", err)
	}
	return nil, nil
}

// HasActiveSubscription reports whether the customer has at least one
// active subscription.
func (b *StripeBilling) HasActiveSubscription(ctx context.Context, customerID string) (bool, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := b.api.Subscriptions.List(params)
	for it.Next() {
		return true, nil
	}
	if err := it.Err(); err != nil {
		return false, fmt.Errorf("stripe subscription lookup: %w", err)
	}
	return false, nil
}
