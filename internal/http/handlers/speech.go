package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

// ListVoices handles GET /v1/speech/voices.
func (a *App) ListVoices(w http.ResponseWriter, r *http.Request) {
	if a.Speech == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "speech synthesis is not configured")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"voices": a.Speech.Voices()})
}

type speechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

// GenerateSpeech handles POST /v1/speech/generate and streams the synthesized
// audio back. Speech is free, no credits move.
func (a *App) GenerateSpeech(w http.ResponseWriter, r *http.Request) {
	if a.Speech == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "speech synthesis is not configured")
		return
	}
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Text == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}
	audio, err := a.Speech.Synthesize(r.Context(), req.Text, a.Speech.ResolveVoiceID(req.VoiceID))
	if err != nil {
		a.error(w, http.StatusBadGateway, "speech_failed", "Speech synthesis failed.")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

type narrationRequest struct {
	VoiceID string `json:"voiceId"`
}

// NarrateStory handles POST /v1/stories/{id}/narration. It synthesizes the
// story for its owner, records the replay URL on the story and streams the
// audio back.
func (a *App) NarrateStory(w http.ResponseWriter, r *http.Request) {
	if a.Speech == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "speech synthesis is not configured")
		return
	}
	storyID := chi.URLParam(r, "id")
	userID := a.currentUserID(r)

	st, err := a.Stories.Get(r.Context(), userID, storyID)
	if err != nil {
		a.storyError(w, err)
		return
	}
	if st.UserID != userID {
		a.storyError(w, domain.ErrNotStoryOwner)
		return
	}

	var req narrationRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = st.Settings.NarrationVoice
	}

	audio, err := a.Speech.Synthesize(r.Context(), st.Content, a.Speech.ResolveVoiceID(voiceID))
	if err != nil {
		a.error(w, http.StatusBadGateway, "speech_failed", "Speech synthesis failed.")
		return
	}

	audioURL := a.Config.PublicBaseURL + "/v1/stories/" + storyID + "/narration"
	if err := a.Stories.AttachAudio(r.Context(), userID, storyID, audioURL); err != nil {
		a.Logger.Error().Err(err).Str("story_id", storyID).Msg("narration synthesized but audio url not recorded")
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// PlayNarration handles GET /v1/stories/{id}/narration, the replay target
// recorded as the story's audio URL. Narration is synthesized on demand with
// the story's configured voice.
func (a *App) PlayNarration(w http.ResponseWriter, r *http.Request) {
	if a.Speech == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "speech synthesis is not configured")
		return
	}
	st, err := a.Stories.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.storyError(w, err)
		return
	}
	audio, err := a.Speech.Synthesize(r.Context(), st.Content, a.Speech.ResolveVoiceID(st.Settings.NarrationVoice))
	if err != nil {
		a.error(w, http.StatusBadGateway, "speech_failed", "Speech synthesis failed.")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
