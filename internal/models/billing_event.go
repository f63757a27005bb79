package models

import "time"

// Billing events are closed variants rather than an open map: each webhook
// type the reconciler handles gets its own struct with a statically known
// shape. BillingEvent is a marker interface dispatched on in the reconciler.
type BillingEvent interface {
	billingEvent()
}

// CheckoutCompleted finalizes a link without the magic-link flow when the
// checkout session carried the Telegram user id in its metadata.
type CheckoutCompleted struct {
	CustomerID     string
	TelegramUserID int64 // 0 when metadata was absent
	Email          string
}

// PaymentFailed reports a failed renewal charge. OccurredAt is the
// provider-stamped event time; the grace deadline is computed from it so a
// replayed delivery lands on the same deadline.
type PaymentFailed struct {
	CustomerID string
	OccurredAt time.Time
}

// SubscriptionEnded reports the subscription being cancelled or lapsing.
// EndedAt is the provider's authoritative end-of-service instant.
type SubscriptionEnded struct {
	CustomerID string
	EndedAt    time.Time
}

func (CheckoutCompleted) billingEvent() {}
func (PaymentFailed) billingEvent()     {}
func (SubscriptionEnded) billingEvent() {}
