package policy

import (
	"testing"
	"time"
)

func TestInitialDeadline(t *testing.T) {
	p := Policy{InitialGrace: 48 * time.Hour, PaymentFailedGrace: 24 * time.Hour}
	from := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	got := p.InitialDeadline(from)
	want := from.Add(48 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("InitialDeadline = %v, want %v", got, want)
	}
}

func TestPaymentFailedDeadlineUsesEventTime(t *testing.T) {
	p := Policy{PaymentFailedGrace: 24 * time.Hour}
	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := p.PaymentFailedDeadline(occurred)
	// A replayed delivery hours later must land on the same deadline.
	replay := p.PaymentFailedDeadline(occurred)
	if !first.Equal(replay) {
		t.Errorf("replayed deadline diverged: %v vs %v", first, replay)
	}
	if want := occurred.Add(24 * time.Hour); !first.Equal(want) {
		t.Errorf("PaymentFailedDeadline = %v, want %v", first, want)
	}
}

func TestSubscriptionEndDeadlineIsAuthoritative(t *testing.T) {
	p := Policy{InitialGrace: 48 * time.Hour, PaymentFailedGrace: 24 * time.Hour}
	ended := time.Date(2025, 6, 30, 0, 0, 0, 0, time.FixedZone("CET", 3600))

	got := p.SubscriptionEndDeadline(ended)
	if !got.Equal(ended) {
		t.Errorf("SubscriptionEndDeadline = %v, want provider instant %v", got, ended)
	}
	if got.Location() != time.UTC {
		t.Errorf("deadline not normalized to UTC: %v", got.Location())
	}
}
