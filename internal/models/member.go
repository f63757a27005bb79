package models

import (
	"time"

	"github.com/google/uuid"
)

// Member statuses. Webhook transitions are last-write-wins: each one is a
// deterministic function of event content, so there is no transition table
// to validate against.
const (
	MemberStatusUnlinked     = "unlinked"
	MemberStatusActive       = "active"
	MemberStatusPaymentIssue = "payment_issue"
)

// Member is one row per Telegram identity. StripeCustomerID is unique when
// set: a Stripe customer maps to at most one Telegram account.
type Member struct {
	ID               uuid.UUID  `json:"id"`
	TelegramUserID   int64      `json:"telegram_user_id"`
	Username         *string    `json:"username,omitempty"`
	StripeCustomerID *string    `json:"stripe_customer_id,omitempty"`
	Status           string     `json:"status"`
	DeadlineAt       *time.Time `json:"deadline_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Lapsed reports whether the member's access deadline has passed while the
// subscription is not in good standing. Enforcement only ever reads
// status + deadline_at.
func (m *Member) Lapsed(now time.Time) bool {
	if m.Status == MemberStatusActive || m.DeadlineAt == nil {
		return false
	}
	return now.After(*m.DeadlineAt)
}
