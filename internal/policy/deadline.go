// Package policy centralizes every grace-period rule so the link flow and
// the webhook reconciler never hardcode durations of their own.
package policy

import "time"

// Policy computes access-revocation deadlines. It is pure: every method is
// a function of its arguments and the configured durations only.
type Policy struct {
	// InitialGrace is how long an unlinked member keeps access after first
	// contact with the bot.
	InitialGrace time.Duration
	// PaymentFailedGrace is how long access survives a failed renewal charge.
	PaymentFailedGrace time.Duration
}

// InitialDeadline is the revocation instant for a member who has started
// linking but not finished.
func (p Policy) InitialDeadline(from time.Time) time.Time {
	return from.Add(p.InitialGrace).UTC()
}

// PaymentFailedDeadline computes the deadline from the provider-stamped
// event time, not the local clock, so replayed deliveries converge on the
// same instant.
func (p Policy) PaymentFailedDeadline(occurredAt time.Time) time.Time {
	return occurredAt.Add(p.PaymentFailedGrace).UTC()
}

// SubscriptionEndDeadline passes through the provider's authoritative
// end-of-service instant. The provider already accounts for any remaining
// paid period, so no local grace is added.
func (p Policy) SubscriptionEndDeadline(endedAt time.Time) time.Time {
	return endedAt.UTC()
}
