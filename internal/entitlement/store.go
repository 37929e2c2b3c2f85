// Package entitlement is the single durable home for per-user entitlement
// state: credit balance, premium flag, owned-story list. Every component that
// reads or mutates entitlements goes through the Store interface; nothing
// reaches into the database directly.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// State is the entitlement snapshot returned to clients after a mutation.
type State struct {
	Credits   int
	IsPremium bool
}

// ReconciliationTask is a payment event whose entitlement mutation failed
// after the processor confirmed the money moved. It stays queued until a
// retry or a human resolves it.
type ReconciliationTask struct {
	ID             string
	EventID        string
	Kind           domain.PaymentKind
	UserID         string
	CreditsGranted int
	Attempts       int
}

// Store persists user entitlement state. Credit mutations are atomic
// conditional updates on the user row; the store never does
// load-modify-save on the credit balance.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// DebitCredits decrements atomically, guarded by the balance: it returns
	// domain.ErrInsufficientCredits without mutating when the balance is
	// short. Returns the remaining balance.
	DebitCredits(ctx context.Context, userID string, amount int) (int, error)

	// CreditCredits increments atomically (refunds and purchases).
	CreditCredits(ctx context.Context, userID string, amount int) (int, error)

	Entitlements(ctx context.Context, userID string) (State, error)

	// AppendStory links a newly created story to its owner; RemoveStory
	// unlinks on deletion.
	AppendStory(ctx context.Context, userID, storyID string) error
	RemoveStory(ctx context.Context, userID, storyID string) error

	// ApplyPaymentEvent claims the event id and applies the entitlement
	// mutation in a single atomic statement. The bool reports whether this
	// call applied the event; false means a duplicate delivery, which is a
	// no-op success.
	ApplyPaymentEvent(ctx context.Context, ev domain.PaymentEvent) (State, bool, error)

	QueueReconciliation(ctx context.Context, ev domain.PaymentEvent, cause string) error
	PendingReconciliation(ctx context.Context, limit int) ([]ReconciliationTask, error)
	ResolveReconciliation(ctx context.Context, taskID string) error
	BumpReconciliation(ctx context.Context, taskID, cause string) error
}

// PGStore implements Store on Postgres through the shared SQL runner.
type PGStore struct {
	sql infra.SQLExecutor
}

func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id)
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Locale, &u.Role, &u.Subscription,
		&u.IsPremium, &u.Credits, &u.StoryCount, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return &u, nil
}

func (s *PGStore) DebitCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	var remaining int
	err := s.sql.QueryRow(ctx, sqlinline.QDebitCredits, userID, amount).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows means the balance guard rejected the debit, or the user
		// is gone entirely. Tell them apart so callers surface the right error.
		if _, stateErr := s.Entitlements(ctx, userID); stateErr != nil {
			return 0, stateErr
		}
		return 0, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("debit %d credits from user %s: %w", amount, userID, err)
	}
	return remaining, nil
}

func (s *PGStore) CreditCredits(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	var balance int
	err := s.sql.QueryRow(ctx, sqlinline.QCreditCredits, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit %d credits to user %s: %w", amount, userID, err)
	}
	return balance, nil
}

func (s *PGStore) Entitlements(ctx context.Context, userID string) (State, error) {
	var st State
	err := s.sql.QueryRow(ctx, sqlinline.QSelectUserEntitlements, userID).Scan(&st.Credits, &st.IsPremium)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, domain.ErrUserNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load entitlements for user %s: %w", userID, err)
	}
	return st, nil
}

func (s *PGStore) AppendStory(ctx context.Context, userID, storyID string) error {
	var count int
	err := s.sql.QueryRow(ctx, sqlinline.QAppendStoryToUser, userID, storyID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("link story %s to user %s: %w", storyID, userID, err)
	}
	return nil
}

func (s *PGStore) RemoveStory(ctx context.Context, userID, storyID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QRemoveStoryFromUser, userID, storyID); err != nil {
		return fmt.Errorf("unlink story %s from user %s: %w", storyID, userID, err)
	}
	return nil
}

func (s *PGStore) ApplyPaymentEvent(ctx context.Context, ev domain.PaymentEvent) (State, bool, error) {
	query := sqlinline.QApplyCreditEvent
	args := []any{ev.EventID, ev.UserID, ev.CreditsGranted}
	if ev.Kind == domain.PaymentKindPremium {
		query = sqlinline.QApplyPremiumEvent
		args = []any{ev.EventID, ev.UserID}
	}

	var credits int
	err := s.sql.QueryRow(ctx, query, args...).Scan(&credits)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// The event id was already claimed by an earlier delivery.
		st, stateErr := s.Entitlements(ctx, ev.UserID)
		if stateErr != nil {
			return State{}, false, stateErr
		}
		return st, false, nil
	case isForeignKeyViolation(err):
		// The claim row references a user that does not exist; nothing was
		// committed, so a later delivery can still succeed.
		return State{}, false, domain.ErrUserNotFound
	case err != nil:
		return State{}, false, fmt.Errorf("apply payment event %s: %w", ev.EventID, err)
	}

	st := State{Credits: credits, IsPremium: ev.Kind == domain.PaymentKindPremium}
	if ev.Kind == domain.PaymentKindCredits {
		full, stateErr := s.Entitlements(ctx, ev.UserID)
		if stateErr == nil {
			st = full
		}
	}
	return st, true, nil
}

func (s *PGStore) QueueReconciliation(ctx context.Context, ev domain.PaymentEvent, cause string) error {
	var id string
	err := s.sql.QueryRow(ctx, sqlinline.QInsertReconciliationTask,
		ev.EventID, string(ev.Kind), ev.UserID, ev.CreditsGranted, cause).Scan(&id)
	if err != nil {
		return fmt.Errorf("queue reconciliation for event %s: %w", ev.EventID, err)
	}
	return nil
}

func (s *PGStore) PendingReconciliation(ctx context.Context, limit int) ([]ReconciliationTask, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListPendingReconciliation, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reconciliation: %w", err)
	}
	defer rows.Close()

	var tasks []ReconciliationTask
	for rows.Next() {
		var t ReconciliationTask
		var kind string
		if err := rows.Scan(&t.ID, &t.EventID, &kind, &t.UserID, &t.CreditsGranted, &t.Attempts); err != nil {
			return nil, fmt.Errorf("scan reconciliation task: %w", err)
		}
		t.Kind = domain.PaymentKind(kind)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PGStore) ResolveReconciliation(ctx context.Context, taskID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QResolveReconciliationTask, taskID); err != nil {
		return fmt.Errorf("resolve reconciliation task %s: %w", taskID, err)
	}
	return nil
}

func (s *PGStore) BumpReconciliation(ctx context.Context, taskID, cause string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QBumpReconciliationTask, taskID, cause); err != nil {
		return fmt.Errorf("bump reconciliation task %s: %w", taskID, err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Store = (*PGStore)(nil)
