package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/policy"
)

type storyView struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId"`
	Title       string               `json:"title"`
	Content     string               `json:"content"`
	Settings    domain.StorySettings `json:"settings"`
	IsPublic    bool                 `json:"isPublic"`
	AudioURL    string               `json:"audioUrl,omitempty"`
	ImageURL    string               `json:"imageUrl,omitempty"`
	Category    string               `json:"category"`
	Likes       int                  `json:"likes"`
	Plays       int                  `json:"plays"`
	CreditsCost int                  `json:"creditsCost"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func toStoryView(st *domain.Story) storyView {
	return storyView{
		ID:          st.ID,
		UserID:      st.UserID,
		Title:       st.Title,
		Content:     st.Content,
		Settings:    st.Settings,
		IsPublic:    st.IsPublic,
		AudioURL:    st.AudioURL,
		ImageURL:    st.ImageURL,
		Category:    st.Category,
		Likes:       st.Likes,
		Plays:       st.Plays,
		CreditsCost: st.CreditsCost,
		CreatedAt:   st.CreatedAt,
		UpdatedAt:   st.UpdatedAt,
	}
}

func toStoryViews(stories []domain.Story) []storyView {
	out := make([]storyView, 0, len(stories))
	for i := range stories {
		out = append(out, toStoryView(&stories[i]))
	}
	return out
}

type createStoryRequest struct {
	Title    string               `json:"title"`
	Settings domain.StorySettings `json:"settings"`
	IsPublic bool                 `json:"isPublic"`
}

// CreateStory handles POST /v1/stories. The requested explicitness level is
// clamped to the regional maximum for the client's country before
// generation.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	country := middleware.CountryFromContext(r.Context())
	req.Settings.ExplicitLevel = policy.ClampExplicitLevel(req.Settings.ExplicitLevel, country)
	st, err := a.Stories.Create(r.Context(), userID, req.Title, req.Settings, req.IsPublic)
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toStoryView(st))
}

// ContinueStory handles POST /v1/stories/{id}/continue. The story owner is
// charged even when someone else triggers the continuation of a public story.
func (a *App) ContinueStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "id")
	st, err := a.Stories.Continue(r.Context(), storyID)
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, toStoryView(st))
}

// GetStory handles GET /v1/stories/{id}.
func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	st, err := a.Stories.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, toStoryView(st))
}

// ListStories handles GET /v1/stories and returns the caller's library.
func (a *App) ListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := a.Stories.ListForUser(r.Context(), a.currentUserID(r))
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"stories": toStoryViews(stories)})
}

// Discover handles GET /v1/discover, the public community feed.
func (a *App) Discover(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	stories, err := a.Stories.ListPublic(r.Context(), limit)
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"stories": toStoryViews(stories)})
}

type visibilityRequest struct {
	IsPublic bool `json:"isPublic"`
}

// SetStoryVisibility handles PATCH /v1/stories/{id}/visibility.
func (a *App) SetStoryVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	st, err := a.Stories.SetVisibility(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), req.IsPublic)
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, toStoryView(st))
}

type updateStoryRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateStory handles PATCH /v1/stories/{id}.
func (a *App) UpdateStory(w http.ResponseWriter, r *http.Request) {
	var req updateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	st, err := a.Stories.Update(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, toStoryView(st))
}

// DeleteStory handles DELETE /v1/stories/{id}.
func (a *App) DeleteStory(w http.ResponseWriter, r *http.Request) {
	if err := a.Stories.Delete(r.Context(), a.currentUserID(r), chi.URLParam(r, "id")); err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}

type titleSuggestionsRequest struct {
	Content string `json:"content"`
}

// SuggestTitles handles POST /v1/stories/title-suggestions. Suggestions are
// free, no credits move.
func (a *App) SuggestTitles(w http.ResponseWriter, r *http.Request) {
	if a.Titles == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "title suggestions are not configured")
		return
	}
	var req titleSuggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Content == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "content is required")
		return
	}
	titles, err := a.Titles.SuggestTitles(r.Context(), req.Content)
	if err != nil {
		a.error(w, http.StatusBadGateway, "generation_failed", "Could not generate title suggestions.")
		return
	}
	a.json(w, http.StatusOK, map[string][]string{"titles": titles})
}
