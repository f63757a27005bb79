package models

import (
	"time"

	"github.com/google/uuid"
)

// Token kinds. The kind marks the link-flow phase; redemption itself does
// not branch on it, but audit records and the payload shape do.
const (
	TokenKindHandshake    = "handshake"
	TokenKindVerification = "verification"
)

// LinkToken is a single-use magic-link token. The secret is the sole
// capability needed to redeem it. A token with a non-nil UsedAt, or one past
// ExpiresAt, is permanently inert.
//
// StripeCustomerID is the per-kind payload: nil for handshake tokens,
// required for verification tokens (it carries the customer discovered by
// the email lookup forward to finalization).
type LinkToken struct {
	ID               uuid.UUID  `json:"id"`
	Secret           string     `json:"-"`
	MemberID         uuid.UUID  `json:"member_id"`
	Kind             string     `json:"kind"`
	StripeCustomerID *string    `json:"stripe_customer_id,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
