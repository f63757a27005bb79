package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/membergate/backend/internal/events"
	"github.com/membergate/backend/internal/models"
	"github.com/membergate/backend/internal/repositories"
)

// In-memory stores mirroring the repositories' semantics, including the
// redeem compare-and-set (mutex-guarded here, single UPDATE statement in
// Postgres).

type fakeMembers struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Member
	byTelegram map[int64]uuid.UUID
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{
		byID:       make(map[uuid.UUID]*models.Member),
		byTelegram: make(map[int64]uuid.UUID),
	}
}

func (f *fakeMembers) UpsertByTelegramID(_ context.Context, telegramID int64, username *string) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.byTelegram[telegramID]; ok {
		m := f.byID[id]
		if username != nil {
			m.Username = username
		}
		m.UpdatedAt = time.Now()
		return copyMember(m), nil
	}

	m := &models.Member{
		ID:             uuid.New(),
		TelegramUserID: telegramID,
		Username:       username,
		Status:         models.MemberStatusUnlinked,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.byID[m.ID] = m
	f.byTelegram[telegramID] = m.ID
	return copyMember(m), nil
}

func (f *fakeMembers) SetInitialDeadline(_ context.Context, memberID uuid.UUID, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.byID[memberID]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	if m.Status == models.MemberStatusUnlinked && m.DeadlineAt == nil {
		m.DeadlineAt = &deadline
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeMembers) Activate(_ context.Context, memberID uuid.UUID, customerID string) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.byID[memberID]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	m.StripeCustomerID = &customerID
	m.Status = models.MemberStatusActive
	m.DeadlineAt = nil
	m.UpdatedAt = time.Now()
	return copyMember(m), nil
}

func (f *fakeMembers) ApplyPaymentIssue(_ context.Context, customerID string, deadline time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.byID {
		if m.StripeCustomerID != nil && *m.StripeCustomerID == customerID {
			m.Status = models.MemberStatusPaymentIssue
			m.DeadlineAt = &deadline
			m.UpdatedAt = time.Now()
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeMembers) GetByTelegramID(_ context.Context, telegramID int64) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byTelegram[telegramID]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	return copyMember(f.byID[id]), nil
}

func (f *fakeMembers) GetByCustomerID(_ context.Context, customerID string) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.byID {
		if m.StripeCustomerID != nil && *m.StripeCustomerID == customerID {
			return copyMember(m), nil
		}
	}
	return nil, repositories.ErrMemberNotFound
}

func copyMember(m *models.Member) *models.Member {
	cp := *m
	if m.StripeCustomerID != nil {
		v := *m.StripeCustomerID
		cp.StripeCustomerID = &v
	}
	if m.DeadlineAt != nil {
		v := *m.DeadlineAt
		cp.DeadlineAt = &v
	}
	return &cp
}

type fakeTokens struct {
	mu      sync.Mutex
	counter int
	tokens  map[string]*models.LinkToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]*models.LinkToken)}
}

func (f *fakeTokens) Issue(_ context.Context, memberID uuid.UUID, kind string, customerID *string, ttl time.Duration) (*models.LinkToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counter++
	t := &models.LinkToken{
		ID:               uuid.New(),
		Secret:           fmt.Sprintf("%s-secret-%d", kind, f.counter),
		MemberID:         memberID,
		Kind:             kind,
		StripeCustomerID: customerID,
		ExpiresAt:        time.Now().Add(ttl),
		CreatedAt:        time.Now(),
	}
	f.tokens[t.Secret] = t
	return copyToken(t), nil
}

func (f *fakeTokens) Peek(_ context.Context, secret string) (*models.LinkToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tokens[secret]
	if !ok {
		return nil, repositories.ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (f *fakeTokens) Redeem(_ context.Context, secret string) (*models.LinkToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tokens[secret]
	if !ok {
		return nil, repositories.ErrTokenNotFound
	}
	if t.UsedAt != nil {
		return nil, repositories.ErrTokenUsed
	}
	if time.Now().After(t.ExpiresAt) {
		return nil, repositories.ErrTokenExpired
	}
	now := time.Now()
	t.UsedAt = &now
	return copyToken(t), nil
}

func copyToken(t *models.LinkToken) *models.LinkToken {
	cp := *t
	if t.StripeCustomerID != nil {
		v := *t.StripeCustomerID
		cp.StripeCustomerID = &v
	}
	if t.UsedAt != nil {
		v := *t.UsedAt
		cp.UsedAt = &v
	}
	return &cp
}

type fakeBilling struct {
	customersByEmail map[string]Customer
	activeCustomers  map[string]bool
}

func (f *fakeBilling) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	if c, ok := f.customersByEmail[email]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeBilling) HasActiveSubscription(_ context.Context, customerID string) (bool, error) {
	return f.activeCustomers[customerID], nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string // confirm URLs
	err   error
	addrs []string
}

func (f *fakeMailer) SendLinkEmail(_ context.Context, to, confirmURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.addrs = append(f.addrs, to)
	f.sent = append(f.sent, confirmURL)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAudit) Log(_ context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
