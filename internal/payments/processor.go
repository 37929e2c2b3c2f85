// Package payments integrates the payment processor: checkout session
// creation, session verification, webhook parsing, and the entitlement
// reconciler that turns verified payments into credits or premium status.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"server/internal/domain"
)

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	UserID      string
	Email       string
	Kind        domain.PaymentKind
	Credits     int
	AmountCents int64
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
}

// SessionInfo is the verified state of a checkout session, trusted only
// after the processor confirmed it.
type SessionInfo struct {
	ID      string
	Paid    bool
	Kind    domain.PaymentKind
	UserID  string
	Credits int
}

// Processor abstracts the payment provider so handlers and the reconciler
// can be exercised without network calls.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error)
	VerifySession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error)
}

// ErrIrrelevantEvent marks webhook deliveries of types this service ignores.
var ErrIrrelevantEvent = errors.New("irrelevant webhook event")

// StripeProcessor implements Processor against Stripe.
type StripeProcessor struct {
	webhookSecret string
}

// NewStripeProcessor configures the global Stripe client key and returns the
// processor.
func NewStripeProcessor(secretKey, webhookSecret string) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{webhookSecret: webhookSecret}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:      stripe.String(cp.Email),
		SuccessURL:         stripe.String(cp.SuccessURL),
		CancelURL:          stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(cp.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(cp.ProductName),
					Description: stripe.String(cp.Description),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata("userId", cp.UserID)
	params.AddMetadata("kind", string(cp.Kind))
	if cp.Kind == domain.PaymentKindCredits {
		params.AddMetadata("credits", strconv.Itoa(cp.Credits))
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProcessor) VerifySession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	return sessionInfoFromStripe(sess), nil
}

// ParseWebhook verifies the signature and extracts the payment event from a
// completed checkout. Event types other than checkout.session.completed
// return ErrIrrelevantEvent.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	if event.Type != "checkout.session.completed" {
		return nil, ErrIrrelevantEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session from webhook: %w", err)
	}
	info := sessionInfoFromStripe(&sess)
	return &domain.PaymentEvent{
		EventID:        info.ID,
		Kind:           info.Kind,
		UserID:         info.UserID,
		CreditsGranted: info.Credits,
	}, nil
}

func sessionInfoFromStripe(sess *stripe.CheckoutSession) *SessionInfo {
	info := &SessionInfo{
		ID:   sess.ID,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid || sess.Status == stripe.CheckoutSessionStatusComplete,
		Kind: domain.PaymentKindPremium,
	}
	if sess.Metadata != nil {
		info.UserID = sess.Metadata["userId"]
		if sess.Metadata["kind"] == string(domain.PaymentKindCredits) {
			info.Kind = domain.PaymentKindCredits
			if n, err := strconv.Atoi(sess.Metadata["credits"]); err == nil {
				info.Credits = n
			}
		}
	}
	return info
}

var _ Processor = (*StripeProcessor)(nil)
