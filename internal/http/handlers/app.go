package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/entitlement"
	"server/internal/infra"
	"server/internal/ledger"
	"server/internal/middleware"
	"server/internal/payments"
	"server/internal/providers/speech"
	"server/internal/story"
)

// TitleSuggester proposes titles for draft content.
type TitleSuggester interface {
	SuggestTitles(ctx context.Context, content string) ([]string, error)
}

// App carries the wired dependencies for all HTTP handlers.
type App struct {
	Config     *infra.Config
	Logger     zerolog.Logger
	Stories    *story.Service
	Users      entitlement.Store
	Processor  payments.Processor
	Reconciler *payments.Reconciler
	Speech     *speech.Client
	Titles     TitleSuggester
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"code": errCode, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// storyError maps the domain error taxonomy onto the HTTP surface.
func (a *App) storyError(w http.ResponseWriter, err error) {
	var actionErr *ledger.ActionFailedError
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits",
			"You don't have enough credits. Please purchase more credits.")
	case errors.Is(err, domain.ErrStoryLimitReached):
		a.error(w, http.StatusForbidden, "story_limit_reached",
			"Free users can only create 3 stories. Upgrade to premium for unlimited stories.")
	case errors.Is(err, domain.ErrVisibilityDenied):
		a.error(w, http.StatusForbidden, "premium_required",
			"Only premium users can share stories publicly.")
	case errors.Is(err, domain.ErrNotStoryOwner):
		a.error(w, http.StatusForbidden, "forbidden", "You don't have permission to modify this story.")
	case errors.Is(err, domain.ErrStoryNotFound):
		a.error(w, http.StatusNotFound, "not_found", "Story not found.")
	case errors.Is(err, domain.ErrUserNotFound):
		a.error(w, http.StatusNotFound, "not_found", "User not found.")
	case errors.Is(err, domain.ErrInvalidSettings):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.As(err, &actionErr):
		a.error(w, http.StatusBadGateway, "generation_failed",
			"Story generation failed. Your credits have been refunded.")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "Something went wrong.")
	}
}
