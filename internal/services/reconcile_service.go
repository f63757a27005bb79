package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/membergate/backend/internal/events"
	"github.com/membergate/backend/internal/models"
	"github.com/membergate/backend/internal/policy"
	"github.com/membergate/backend/internal/repositories"
	"go.uber.org/zap"
)

// ReconcileService applies verified Stripe events to member records. Every
// transition is a deterministic function of event content, so redelivered
// events converge on the same row state. Events for customers no member has
// linked are accepted and dropped: that identity simply has not started
// linking yet.
type ReconcileService struct {
	members   memberStore
	audit     auditLogger
	publisher events.Publisher
	policy    policy.Policy
	log       *zap.Logger
}

func NewReconcileService(
	members memberStore,
	audit auditLogger,
	publisher events.Publisher,
	pol policy.Policy,
	log *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		members:   members,
		audit:     audit,
		publisher: publisher,
		policy:    pol,
		log:       log,
	}
}

func (s *ReconcileService) Apply(ctx context.Context, event models.BillingEvent) error {
	switch e := event.(type) {
	case models.CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, e)
	case models.PaymentFailed:
		deadline := s.policy.PaymentFailedDeadline(e.OccurredAt)
		return s.applyPaymentIssue(ctx, e.CustomerID, deadline, events.EventPaymentFailed)
	case models.SubscriptionEnded:
		deadline := s.policy.SubscriptionEndDeadline(e.EndedAt)
		return s.applyPaymentIssue(ctx, e.CustomerID, deadline, events.EventSubscriptionEnded)
	default:
		return fmt.Errorf("unhandled billing event %T", event)
	}
}

// applyCheckoutCompleted is the alternate finalize path: when the checkout
// session carried the Telegram id in its metadata, the member activates
// without ever touching the magic-link flow. The member is resolved by
// Telegram id, never inferred from the customer id.
func (s *ReconcileService) applyCheckoutCompleted(ctx context.Context, e models.CheckoutCompleted) error {
	if e.TelegramUserID == 0 {
		s.log.Debug("checkout completed without telegram metadata, ignoring",
			zap.String("customer_id", e.CustomerID))
		return nil
	}

	m, err := s.members.GetByTelegramID(ctx, e.TelegramUserID)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		s.log.Debug("checkout completed for unknown member, ignoring",
			zap.Int64("telegram_user_id", e.TelegramUserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup member: %w", err)
	}

	m, err = s.members.Activate(ctx, m.ID, e.CustomerID)
	if err != nil {
		return fmt.Errorf("activate member: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "webhook",
		Action:     "checkout_completed",
		EntityType: "member",
		EntityID:   &m.ID,
		Meta:       map[string]any{"stripe_customer_id": e.CustomerID},
	})
	_ = s.publisher.Publish(ctx, events.ChannelLink, events.Event{
		Type:    events.EventLinkActivated,
		Payload: map[string]any{"telegram_user_id": m.TelegramUserID},
	})
	return nil
}

// applyPaymentIssue moves the member keyed by customer id into
// payment_issue with the given deadline. Zero rows touched means no member
// has linked that customer: accepted, dropped.
func (s *ReconcileService) applyPaymentIssue(ctx context.Context, customerID string, deadline time.Time, eventType string) error {
	n, err := s.members.ApplyPaymentIssue(ctx, customerID, deadline)
	if err != nil {
		return fmt.Errorf("apply payment issue: %w", err)
	}
	if n == 0 {
		s.log.Debug("billing event for unknown customer, ignoring",
			zap.String("customer_id", customerID),
			zap.String("event", eventType))
		return nil
	}

	m, err := s.members.GetByCustomerID(ctx, customerID)
	if err != nil {
		// The row was just updated; a miss here is a concurrent unlink or a
		// transient read failure. Notification is best-effort either way.
		s.log.Warn("member lookup after payment issue failed", zap.Error(err))
		return nil
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorType:  "webhook",
		Action:     eventType,
		EntityType: "member",
		EntityID:   &m.ID,
		Meta:       map[string]any{"stripe_customer_id": customerID, "deadline_at": deadline},
	})
	_ = s.publisher.Publish(ctx, events.ChannelBilling, events.Event{
		Type: eventType,
		Payload: map[string]any{
			"telegram_user_id": m.TelegramUserID,
			"deadline_at":      deadline.Format(time.RFC3339),
		},
	})
	return nil
}
