package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/membergate/backend/internal/models"
)

// Token redemption outcomes. Handlers must collapse all three into one
// generic message; the distinction exists for logging and audit only.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")
)

type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

// Issue persists a new single-use token and returns it with its secret.
// customerID is the per-kind payload: nil for handshake tokens.
func (r *TokenRepo) Issue(ctx context.Context, memberID uuid.UUID, kind string, customerID *string, ttl time.Duration) (*models.LinkToken, error) {
	t := &models.LinkToken{
		Secret:           generateSecret(32),
		MemberID:         memberID,
		Kind:             kind,
		StripeCustomerID: customerID,
		ExpiresAt:        time.Now().Add(ttl).UTC(),
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO link_tokens (secret, member_id, kind, stripe_customer_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, t.Secret, t.MemberID, t.Kind, t.StripeCustomerID, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Peek looks the token up without spending it.
func (r *TokenRepo) Peek(ctx context.Context, secret string) (*models.LinkToken, error) {
	var t models.LinkToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, secret, member_id, kind, stripe_customer_id, expires_at, used_at, created_at
		FROM link_tokens WHERE secret = $1
	`, secret).Scan(&t.ID, &t.Secret, &t.MemberID, &t.Kind, &t.StripeCustomerID, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Redeem spends the token in a single compare-and-set statement. Under
// concurrent redemption of the same secret exactly one caller gets the row;
// everyone else gets ErrTokenUsed (or ErrTokenExpired/ErrTokenNotFound).
func (r *TokenRepo) Redeem(ctx context.Context, secret string) (*models.LinkToken, error) {
	var t models.LinkToken
	err := r.pool.QueryRow(ctx, `
		UPDATE link_tokens SET used_at = now()
		WHERE secret = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING id, secret, member_id, kind, stripe_customer_id, expires_at, used_at, created_at
	`, secret).Scan(&t.ID, &t.Secret, &t.MemberID, &t.Kind, &t.StripeCustomerID, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, r.classifyRedeemFailure(ctx, secret)
}

// classifyRedeemFailure is a read-only follow-up after the CAS matched
// nothing. A concurrent winner may have spent the token between the two
// statements; it still classifies as used, which is the truth.
func (r *TokenRepo) classifyRedeemFailure(ctx context.Context, secret string) error {
	var used, expired bool
	err := r.pool.QueryRow(ctx, `
		SELECT used_at IS NOT NULL, expires_at <= now()
		FROM link_tokens WHERE secret = $1
	`, secret).Scan(&used, &expired)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	if used {
		return ErrTokenUsed
	}
	if expired {
		return ErrTokenExpired
	}
	return ErrTokenNotFound
}

// DeleteExpired removes tokens whose expiry is older than the cutoff,
// spent or not. Run by the enforcer as a retention sweep.
func (r *TokenRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM link_tokens WHERE expires_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func generateSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure means the host is unusable
	}
	return hex.EncodeToString(b)
}
