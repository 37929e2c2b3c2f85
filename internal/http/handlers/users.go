package handlers

import (
	"net/http"
	"time"

	"server/internal/middleware"
)

type userView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Locale     string    `json:"locale"`
	IsPremium  bool      `json:"isPremium"`
	Credits    int       `json:"credits"`
	StoryCount int       `json:"storyCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Me handles GET /v1/users/me, the profile and entitlement snapshot the
// client renders its credit balance from.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	user, err := a.Users.GetUser(r.Context(), a.currentUserID(r))
	if err != nil {
		a.storyError(w, err)
		return
	}
	locale := user.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	a.json(w, http.StatusOK, userView{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Locale:     locale,
		IsPremium:  user.IsPremium,
		Credits:    user.Credits,
		StoryCount: user.StoryCount,
		CreatedAt:  user.CreatedAt,
	})
}
