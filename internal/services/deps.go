package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/membergate/backend/internal/models"
)

// Storage dependencies are narrow interfaces so tests substitute in-memory
// fakes; repositories satisfy them.

type memberStore interface {
	UpsertByTelegramID(ctx context.Context, telegramID int64, username *string) (*models.Member, error)
	SetInitialDeadline(ctx context.Context, memberID uuid.UUID, deadline time.Time) error
	Activate(ctx context.Context, memberID uuid.UUID, customerID string) (*models.Member, error)
	ApplyPaymentIssue(ctx context.Context, customerID string, deadline time.Time) (int64, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Member, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Member, error)
}

type tokenStore interface {
	Issue(ctx context.Context, memberID uuid.UUID, kind string, customerID *string, ttl time.Duration) (*models.LinkToken, error)
	Peek(ctx context.Context, secret string) (*models.LinkToken, error)
	Redeem(ctx context.Context, secret string) (*models.LinkToken, error)
}

type auditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type linkMailer interface {
	SendLinkEmail(ctx context.Context, to, confirmURL string) error
}
