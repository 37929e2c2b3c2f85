package domain

// PaymentKind distinguishes what a completed checkout pays for.
type PaymentKind string

const (
	PaymentKindPremium PaymentKind = "premium"
	PaymentKindCredits PaymentKind = "credits"
)

// PremiumPriceCents is the one-time premium upgrade price.
const PremiumPriceCents = 999

// PaymentEvent is a payment-processor success signal. EventID is the
// processor-assigned checkout session id and doubles as the idempotency key:
// the same event may arrive through the webhook, the redirect success page,
// and any number of retries of either, and must mutate entitlements once.
type PaymentEvent struct {
	EventID        string
	Kind           PaymentKind
	UserID         string
	CreditsGranted int
}

// CreditPackage is a purchasable credit bundle.
type CreditPackage struct {
	ID                string
	Name              string
	Credits           int
	PriceCents        int64
	PremiumPriceCents int64 // discounted price for premium subscribers
}

// CreditPackages lists the purchasable bundles, keyed by package id.
var CreditPackages = map[string]CreditPackage{
	"starter": {ID: "starter", Name: "Starter Pack", Credits: 10, PriceCents: 399, PremiumPriceCents: 299},
	"popular": {ID: "popular", Name: "Popular Pack", Credits: 30, PriceCents: 999, PremiumPriceCents: 699},
	"pro":     {ID: "pro", Name: "Premium Pack", Credits: 100, PriceCents: 1999, PremiumPriceCents: 1499},
}

// PriceFor returns the package price applicable to the user.
func (p CreditPackage) PriceFor(isPremium bool) int64 {
	if isPremium {
		return p.PremiumPriceCents
	}
	return p.PriceCents
}
