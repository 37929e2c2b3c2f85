package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter wires the HTTP surface. The webhook and the checkout redirect
// targets stay outside the auth group: Stripe has no user token, and the
// redirect arrives from the browser before the client re-authenticates.
func NewRouter(app *handlers.App, countries middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS([]string{app.Config.CheckoutBaseURL}),
		middleware.I18N("en", countries),
	)

	r.Get("/v1/healthz", app.Health)

	// Public surface.
	r.Get("/v1/discover", app.Discover)
	r.Get("/v1/speech/voices", app.ListVoices)
	r.Post("/v1/payments/webhook", app.StripeWebhook)
	r.Get("/v1/payments/success", app.PaymentSuccess)
	r.Get("/v1/payments/credit-success", app.CreditSuccess)

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Get("/v1/stories", app.ListStories)
		r.Get("/v1/stories/{id}", app.GetStory)
		r.Patch("/v1/stories/{id}", app.UpdateStory)
		r.Delete("/v1/stories/{id}", app.DeleteStory)
		r.Patch("/v1/stories/{id}/visibility", app.SetStoryVisibility)
		r.Get("/v1/stories/{id}/narration", app.PlayNarration)

		r.Get("/v1/payments/packages", app.ListCreditPackages)
		r.Post("/v1/payments/checkout-session", app.CreateCheckoutSession)

		// Generation routes burn provider quota, so they get their own
		// rate limit on top of auth.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

			r.Post("/v1/stories", app.CreateStory)
			r.Post("/v1/stories/{id}/continue", app.ContinueStory)
			r.Post("/v1/stories/title-suggestions", app.SuggestTitles)
			r.Post("/v1/stories/{id}/narration", app.NarrateStory)
			r.Post("/v1/speech/generate", app.GenerateSpeech)
		})
	})

	return r
}
