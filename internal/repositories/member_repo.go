package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/membergate/backend/internal/models"
)

var ErrMemberNotFound = errors.New("member not found")

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

const memberColumns = `id, telegram_user_id, username, stripe_customer_id, status, deadline_at, created_at, updated_at`

// UpsertByTelegramID creates the member row on first contact. On conflict it
// only refreshes bookkeeping fields: status, stripe_customer_id and an
// already-set deadline are never touched, so a repeated link request cannot
// demote an active member.
func (r *MemberRepo) UpsertByTelegramID(ctx context.Context, telegramID int64, username *string) (*models.Member, error) {
	var m models.Member
	err := r.pool.QueryRow(ctx, `
		INSERT INTO members (telegram_user_id, username)
		VALUES ($1, $2)
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, members.username),
			updated_at = now()
		RETURNING `+memberColumns+`
	`, telegramID, username).Scan(
		&m.ID, &m.TelegramUserID, &m.Username, &m.StripeCustomerID, &m.Status, &m.DeadlineAt, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// SetInitialDeadline fills the first revocation deadline. Guarded in SQL so
// it is a no-op once the member is linked or a deadline already exists.
func (r *MemberRepo) SetInitialDeadline(ctx context.Context, memberID uuid.UUID, deadline time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE members SET deadline_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'unlinked' AND deadline_at IS NULL
	`, memberID, deadline)
	return err
}

// Activate is the single producer of the active transition, shared by the
// magic-link finalize and the checkout webhook. One statement writes the
// whole triple so no partial state is ever observable.
func (r *MemberRepo) Activate(ctx context.Context, memberID uuid.UUID, customerID string) (*models.Member, error) {
	var m models.Member
	err := r.pool.QueryRow(ctx, `
		UPDATE members SET stripe_customer_id = $2, status = 'active', deadline_at = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+memberColumns+`
	`, memberID, customerID).Scan(
		&m.ID, &m.TelegramUserID, &m.Username, &m.StripeCustomerID, &m.Status, &m.DeadlineAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ApplyPaymentIssue moves the member keyed by Stripe customer id into
// payment_issue with the given deadline. Returns the number of rows touched;
// zero means no member has linked that customer yet and the caller treats
// the event as a no-op.
func (r *MemberRepo) ApplyPaymentIssue(ctx context.Context, customerID string, deadline time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members SET status = 'payment_issue', deadline_at = $2, updated_at = now()
		WHERE stripe_customer_id = $1
	`, customerID, deadline)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
}

func (r *MemberRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE telegram_user_id = $1`, telegramID)
}

func (r *MemberRepo) GetByCustomerID(ctx context.Context, customerID string) (*models.Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM members WHERE stripe_customer_id = $1`, customerID)
}

// ListLapsed returns members whose deadline has passed while not active.
// This is the enforcement read contract: status + deadline_at only.
func (r *MemberRepo) ListLapsed(ctx context.Context, now time.Time) ([]models.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE status != 'active' AND deadline_at IS NOT NULL AND deadline_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.TelegramUserID, &m.Username, &m.StripeCustomerID, &m.Status, &m.DeadlineAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepo) getOne(ctx context.Context, query string, arg any) (*models.Member, error) {
	var m models.Member
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&m.ID, &m.TelegramUserID, &m.Username, &m.StripeCustomerID, &m.Status, &m.DeadlineAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
