package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"server/internal/domain"
	"server/internal/payments"
)

type checkoutRequest struct {
	Kind      string `json:"kind"`
	PackageID string `json:"packageId,omitempty"`
}

// CreateCheckoutSession handles POST /v1/payments/checkout-session for both
// the premium upgrade and credit packages.
func (a *App) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	user, err := a.Users.GetUser(r.Context(), userID)
	if err != nil {
		a.storyError(w, err)
		return
	}

	cp := payments.CheckoutParams{
		UserID: userID,
		Email:  user.Email,
	}
	switch domain.PaymentKind(req.Kind) {
	case domain.PaymentKindPremium:
		if user.IsPremium {
			a.error(w, http.StatusConflict, "already_premium", "You already have premium access.")
			return
		}
		cp.Kind = domain.PaymentKindPremium
		cp.AmountCents = domain.PremiumPriceCents
		cp.ProductName = "Premium Upgrade"
		cp.Description = "Unlimited stories and public sharing"
		cp.SuccessURL = a.Config.PublicBaseURL + "/v1/payments/success?session_id={CHECKOUT_SESSION_ID}"
		cp.CancelURL = a.Config.CheckoutBaseURL + "/premium?canceled=true"
	case domain.PaymentKindCredits:
		pkg, ok := domain.CreditPackages[req.PackageID]
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown credit package")
			return
		}
		cp.Kind = domain.PaymentKindCredits
		cp.Credits = pkg.Credits
		cp.AmountCents = pkg.PriceFor(user.IsPremium)
		cp.ProductName = pkg.Name
		cp.Description = fmt.Sprintf("%d story credits", pkg.Credits)
		cp.SuccessURL = a.Config.PublicBaseURL + "/v1/payments/credit-success?session_id={CHECKOUT_SESSION_ID}"
		cp.CancelURL = a.Config.CheckoutBaseURL + "/credits?canceled=true"
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "kind must be premium or credits")
		return
	}

	checkoutURL, err := a.Processor.CreateCheckoutSession(r.Context(), cp)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Str("kind", req.Kind).
			Msg("checkout session creation failed")
		a.error(w, http.StatusBadGateway, "payment_provider_error", "Could not start checkout.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

// ListCreditPackages handles GET /v1/payments/packages. Prices reflect the
// caller's plan.
func (a *App) ListCreditPackages(w http.ResponseWriter, r *http.Request) {
	user, err := a.Users.GetUser(r.Context(), a.currentUserID(r))
	if err != nil {
		a.storyError(w, err)
		return
	}
	type pkgView struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Credits    int    `json:"credits"`
		PriceCents int64  `json:"priceCents"`
	}
	out := make([]pkgView, 0, len(domain.CreditPackages))
	for _, id := range []string{"starter", "popular", "pro"} {
		pkg := domain.CreditPackages[id]
		out = append(out, pkgView{ID: pkg.ID, Name: pkg.Name, Credits: pkg.Credits, PriceCents: pkg.PriceFor(user.IsPremium)})
	}
	a.json(w, http.StatusOK, map[string]any{"packages": out})
}

// PaymentSuccess handles GET /v1/payments/success, the redirect target after
// a premium checkout. The session is verified server side; the redirect URL
// itself proves nothing.
func (a *App) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	info, ev, ok := a.verifiedSession(w, r)
	if !ok {
		return
	}
	if info.Kind != domain.PaymentKindPremium {
		a.error(w, http.StatusBadRequest, "bad_request", "session is not a premium purchase")
		return
	}
	if _, _, err := a.Reconciler.Apply(r.Context(), ev); err != nil {
		a.storyError(w, err)
		return
	}
	http.Redirect(w, r, a.Config.CheckoutBaseURL+"/premium?success=true&session_id="+url.QueryEscape(info.ID), http.StatusSeeOther)
}

// CreditSuccess handles GET /v1/payments/credit-success after a credit
// package checkout.
func (a *App) CreditSuccess(w http.ResponseWriter, r *http.Request) {
	info, ev, ok := a.verifiedSession(w, r)
	if !ok {
		return
	}
	if info.Kind != domain.PaymentKindCredits {
		a.error(w, http.StatusBadRequest, "bad_request", "session is not a credit purchase")
		return
	}
	if _, _, err := a.Reconciler.Apply(r.Context(), ev); err != nil {
		a.storyError(w, err)
		return
	}
	redirect := fmt.Sprintf("%s/credits?success=true&session_id=%s&credits=%d",
		a.Config.CheckoutBaseURL, url.QueryEscape(info.ID), info.Credits)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

func (a *App) verifiedSession(w http.ResponseWriter, r *http.Request) (*payments.SessionInfo, domain.PaymentEvent, bool) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session_id is required")
		return nil, domain.PaymentEvent{}, false
	}
	info, err := a.Processor.VerifySession(r.Context(), sessionID)
	if err != nil {
		a.Logger.Error().Err(err).Str("session_id", sessionID).Msg("checkout session verification failed")
		a.error(w, http.StatusBadGateway, "payment_provider_error", "Could not verify checkout session.")
		return nil, domain.PaymentEvent{}, false
	}
	if !info.Paid {
		a.error(w, http.StatusBadRequest, "payment_incomplete", "Payment has not completed.")
		return nil, domain.PaymentEvent{}, false
	}
	ev := domain.PaymentEvent{
		EventID:        info.ID,
		Kind:           info.Kind,
		UserID:         info.UserID,
		CreditsGranted: info.Credits,
	}
	return info, ev, true
}

// StripeWebhook handles POST /v1/payments/webhook. A non-2xx response makes
// the provider retry the delivery, so only a bad signature is rejected;
// application failures are queued for reconciliation and acknowledged.
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read payload")
		return
	}
	ev, err := a.Processor.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrIrrelevantEvent) {
			a.json(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		a.error(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	if _, _, err := a.Reconciler.Apply(r.Context(), *ev); err != nil {
		// Already queued by the reconciler. Acknowledge so the provider
		// stops retrying a delivery we have safely recorded.
		a.Logger.Warn().Err(err).Str("event_id", ev.EventID).Msg("webhook application deferred to reconciliation")
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
