package payments

import (
	"context"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/entitlement"
)

// Reconciler applies verified payment events to entitlement state exactly
// once. Payment success and entitlement-application success are distinct
// events: when the money moved but the mutation failed, the event is queued
// for retry instead of being dropped, and the processor still gets a
// success response.
type Reconciler struct {
	store  entitlement.Store
	logger zerolog.Logger
}

func NewReconciler(store entitlement.Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Apply mutates entitlements for the event. The returned bool reports
// whether this call applied it; false means a duplicate delivery already
// did, which callers treat as success.
func (r *Reconciler) Apply(ctx context.Context, ev domain.PaymentEvent) (entitlement.State, bool, error) {
	if ev.UserID == "" {
		return entitlement.State{}, false, domain.ErrUserNotResolvable
	}

	st, applied, err := r.store.ApplyPaymentEvent(ctx, ev)
	if err != nil {
		r.logger.Error().Err(err).
			Str("event_id", ev.EventID).
			Str("kind", string(ev.Kind)).
			Str("user_id", ev.UserID).
			Msg("payment verified but entitlement mutation failed")
		// Queue on a detached context: the request may already be dying,
		// and losing this record means a paying customer silently gets nothing.
		if qErr := r.store.QueueReconciliation(context.WithoutCancel(ctx), ev, err.Error()); qErr != nil {
			r.logger.Error().Err(qErr).Str("event_id", ev.EventID).
				Msg("failed to queue payment event for reconciliation")
		}
		return entitlement.State{}, false, err
	}

	if !applied {
		r.logger.Info().Str("event_id", ev.EventID).Str("user_id", ev.UserID).
			Msg("duplicate payment event, entitlement already applied")
		return st, false, nil
	}

	r.logger.Info().
		Str("event_id", ev.EventID).
		Str("kind", string(ev.Kind)).
		Str("user_id", ev.UserID).
		Int("credits_granted", ev.CreditsGranted).
		Msg("payment event applied")
	return st, true, nil
}

// Sweep retries queued events whose entitlement mutation previously failed.
// Duplicate application is impossible because the store's idempotency claim
// also covers retried events.
func (r *Reconciler) Sweep(ctx context.Context, batch int) error {
	tasks, err := r.store.PendingReconciliation(ctx, batch)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		ev := domain.PaymentEvent{
			EventID:        task.EventID,
			Kind:           task.Kind,
			UserID:         task.UserID,
			CreditsGranted: task.CreditsGranted,
		}
		_, _, applyErr := r.store.ApplyPaymentEvent(ctx, ev)
		if applyErr != nil {
			r.logger.Warn().Err(applyErr).Str("event_id", task.EventID).
				Int("attempts", task.Attempts).Msg("reconciliation retry failed")
			if err := r.store.BumpReconciliation(ctx, task.ID, applyErr.Error()); err != nil {
				r.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to record reconciliation attempt")
			}
			continue
		}
		if err := r.store.ResolveReconciliation(ctx, task.ID); err != nil {
			r.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to resolve reconciliation task")
			continue
		}
		r.logger.Info().Str("event_id", task.EventID).Str("user_id", task.UserID).
			Msg("queued payment event reconciled")
	}
	return nil
}
