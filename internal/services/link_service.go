package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/membergate/backend/internal/config"
	"github.com/membergate/backend/internal/events"
	"github.com/membergate/backend/internal/models"
	"github.com/membergate/backend/internal/policy"
	"github.com/membergate/backend/internal/repositories"
	"go.uber.org/zap"
)

// LinkService drives the magic-link handshake:
//
//	Start   -> handshake token, link URL handed to the bot
//	Present -> read-only check that the link page is still reachable
//	Verify  -> spend handshake, look the email up in Stripe, issue
//	           verification token bound to the discovered customer
//	Finish  -> spend verification, activate the member
type LinkService struct {
	members   memberStore
	tokens    tokenStore
	billing   BillingProvider
	mailer    linkMailer
	audit     auditLogger
	publisher events.Publisher
	policy    policy.Policy
	cfg       *config.Config
	log       *zap.Logger
}

func NewLinkService(
	members memberStore,
	tokens tokenStore,
	billing BillingProvider,
	mailer linkMailer,
	audit auditLogger,
	publisher events.Publisher,
	pol policy.Policy,
	cfg *config.Config,
	log *zap.Logger,
) *LinkService {
	return &LinkService{
		members:   members,
		tokens:    tokens,
		billing:   billing,
		mailer:    mailer,
		audit:     audit,
		publisher: publisher,
		policy:    pol,
		cfg:       cfg,
		log:       log,
	}
}

type VerifyOutcome string

const (
	VerifyNoCustomer     VerifyOutcome = "no_customer"
	VerifyNoSubscription VerifyOutcome = "no_subscription"
	VerifyOK             VerifyOutcome = "verified"
)

type VerifyResult struct {
	Outcome    VerifyOutcome
	ConfirmURL string
}

// Start upserts the member and hands back a fresh link URL. Safe to call
// repeatedly: an active member keeps status and customer id, only
// bookkeeping fields refresh.
func (s *LinkService) Start(ctx context.Context, telegramUserID int64, username *string) (string, error) {
	if telegramUserID == 0 {
		return "", fmt.Errorf("%w: telegram_user_id is required", ErrInvalidInput)
	}

	m, err := s.members.UpsertByTelegramID(ctx, telegramUserID, username)
	if err != nil {
		return "", fmt.Errorf("upsert member: %w", err)
	}

	// Guarded in storage: only fills when still unlinked with no deadline.
	if err := s.members.SetInitialDeadline(ctx, m.ID, s.policy.InitialDeadline(time.Now())); err != nil {
		return "", fmt.Errorf("set initial deadline: %w", err)
	}

	t, err := s.tokens.Issue(ctx, m.ID, models.TokenKindHandshake, nil, s.cfg.HandshakeTokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue handshake token: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorMemberID: &m.ID,
		ActorType:     "member",
		Action:        "link_started",
		EntityType:    "member",
		EntityID:      &m.ID,
	})
	_ = s.publisher.Publish(ctx, events.ChannelLink, events.Event{
		Type:    events.EventLinkRequested,
		Payload: map[string]any{"telegram_user_id": telegramUserID},
	})

	return s.linkURL(t.Secret), nil
}

// Present checks the token without spending it, so the form page can render
// before the user is asked to type anything.
func (s *LinkService) Present(ctx context.Context, secret string) (*models.LinkToken, error) {
	t, err := s.tokens.Peek(ctx, secret)
	if err != nil {
		return nil, s.denyToken("present", err)
	}
	if t.UsedAt != nil || time.Now().After(t.ExpiresAt) {
		return nil, ErrLinkDenied
	}
	return t, nil
}

// Verify spends the handshake token, then asks Stripe about the claimed
// email. The token is gone regardless of outcome: a failed lookup cannot be
// retried with the same link, the user must restart via the bot.
func (s *LinkService) Verify(ctx context.Context, secret, email string) (*VerifyResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	t, err := s.tokens.Redeem(ctx, secret)
	if err != nil {
		return nil, s.denyToken("verify", err)
	}

	cust, err := s.billing.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	if cust == nil {
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorMemberID: &t.MemberID,
			ActorType:     "member",
			Action:        "verify_no_customer",
			EntityType:    "member",
			EntityID:      &t.MemberID,
		})
		return &VerifyResult{Outcome: VerifyNoCustomer}, nil
	}

	active, err := s.billing.HasActiveSubscription(ctx, cust.ID)
	if err != nil {
		return nil, fmt.Errorf("subscription lookup: %w", err)
	}
	if !active {
		return &VerifyResult{Outcome: VerifyNoSubscription}, nil
	}

	vt, err := s.tokens.Issue(ctx, t.MemberID, models.TokenKindVerification, &cust.ID, s.cfg.VerificationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}

	confirmURL := s.confirmURL(vt.Secret)

	// Best effort. The verification token already exists and stays
	// redeemable even if this email never arrives.
	if err := s.mailer.SendLinkEmail(ctx, email, confirmURL); err != nil {
		s.log.Warn("confirm email delivery failed",
			zap.String("member_id", t.MemberID.String()),
			zap.Error(err),
		)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorMemberID: &t.MemberID,
		ActorType:     "member",
		Action:        "verify_ok",
		EntityType:    "member",
		EntityID:      &t.MemberID,
		Meta:          map[string]any{"stripe_customer_id": cust.ID},
	})

	return &VerifyResult{Outcome: VerifyOK, ConfirmURL: confirmURL}, nil
}

// Finish spends the verification token and activates the member with the
// customer id the token carried.
func (s *LinkService) Finish(ctx context.Context, secret string) (*models.Member, error) {
	t, err := s.tokens.Redeem(ctx, secret)
	if err != nil {
		return nil, s.denyToken("finish", err)
	}
	// A handshake secret pasted into the activate URL must not work.
	if t.Kind != models.TokenKindVerification || t.StripeCustomerID == nil {
		return nil, ErrLinkDenied
	}

	m, err := s.members.Activate(ctx, t.MemberID, *t.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("activate member: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorMemberID: &m.ID,
		ActorType:     "member",
		Action:        "link_activated",
		EntityType:    "member",
		EntityID:      &m.ID,
		Meta:          map[string]any{"stripe_customer_id": *t.StripeCustomerID},
	})
	_ = s.publisher.Publish(ctx, events.ChannelLink, events.Event{
		Type:    events.EventLinkActivated,
		Payload: map[string]any{"telegram_user_id": m.TelegramUserID},
	})

	s.log.Info("member linked",
		zap.String("member_id", m.ID.String()),
		zap.Int64("telegram_user_id", m.TelegramUserID),
	)
	return m, nil
}

// denyToken collapses every token failure into ErrLinkDenied. The real
// reason goes to debug logs only.
func (s *LinkService) denyToken(op string, err error) error {
	if errors.Is(err, repositories.ErrTokenNotFound) ||
		errors.Is(err, repositories.ErrTokenExpired) ||
		errors.Is(err, repositories.ErrTokenUsed) {
		s.log.Debug("token denied", zap.String("op", op), zap.Error(err))
		return ErrLinkDenied
	}
	return fmt.Errorf("%s token: %w", op, err)
}

func (s *LinkService) linkURL(secret string) string {
	return fmt.Sprintf("%s/link/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), secret)
}

func (s *LinkService) confirmURL(secret string) string {
	return fmt.Sprintf("%s/activate/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), secret)
}
