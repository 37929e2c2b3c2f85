// Package ledger makes credit-metered actions all-or-nothing: the cost is
// debited up front, the wrapped external call runs, and a failure refunds
// the debit before the error is surfaced.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Action is the fallible external call being metered. It returns the
// generated text on success.
type Action func(ctx context.Context) (string, error)

// ActionFailedError reports that the wrapped action failed after the debit
// was taken and the refund was written. The original cause is preserved.
type ActionFailedError struct {
	Op    string
	Cause error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *ActionFailedError) Unwrap() error {
	return e.Cause
}

// CreditStore is the slice of the entitlement store the guard needs.
type CreditStore interface {
	DebitCredits(ctx context.Context, userID string, amount int) (int, error)
	CreditCredits(ctx context.Context, userID string, amount int) (int, error)
}

// Guard wraps credit-consuming operations.
type Guard struct {
	credits CreditStore
	logger  zerolog.Logger
}

func NewGuard(credits CreditStore, logger zerolog.Logger) *Guard {
	return &Guard{credits: credits, logger: logger}
}

// ChargeAndRun debits cost from the user, runs action, and refunds if the
// action fails.
//
// The debit is persisted before the action is invoked, as an atomic
// conditional decrement, so concurrent requests against the same balance
// cannot over-spend: at most one of N racing requests wins the last credit.
// Error outcomes:
//
//   - domain.ErrInsufficientCredits: no mutation happened.
//   - *ActionFailedError: the action failed; the debit has been refunded.
//   - anything else: a persistence failure; the refund may not have been
//     written, which is logged at error level because no compensating
//     mechanism exists.
func (g *Guard) ChargeAndRun(ctx context.Context, userID string, cost int, op string, action Action) (string, error) {
	remaining, err := g.credits.DebitCredits(ctx, userID, cost)
	if err != nil {
		return "", err
	}
	g.logger.Debug().Str("user_id", userID).Str("op", op).Int("cost", cost).
		Int("remaining", remaining).Msg("credits debited")

	result, actionErr := action(ctx)
	if actionErr == nil {
		return result, nil
	}

	// Refund on a context detached from the request: the action often fails
	// precisely because the request deadline fired, and the refund write must
	// not be cancelled along with it.
	refundCtx := context.WithoutCancel(ctx)
	if _, refundErr := g.credits.CreditCredits(refundCtx, userID, cost); refundErr != nil {
		g.logger.Error().Err(refundErr).
			Str("user_id", userID).
			Str("op", op).
			Int("cost", cost).
			AnErr("action_error", actionErr).
			Msg("refund write failed after action failure, balance is short by the cost")
		return "", fmt.Errorf("refund %d credits to user %s after %s failure: %w", cost, userID, op, refundErr)
	}

	g.logger.Warn().Err(actionErr).Str("user_id", userID).Str("op", op).
		Int("cost", cost).Msg("action failed, credits refunded")
	return "", &ActionFailedError{Op: op, Cause: actionErr}
}
