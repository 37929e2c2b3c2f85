// Package speech synthesizes narration audio through an ElevenLabs-style
// text-to-speech HTTP API. It shares the fallible-external-call shape of the
// story generator but is not credit-gated.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"server/internal/domain"
)

// Voice describes a selectable narration voice.
type Voice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	Style     string `json:"style"`
	IsPremium bool   `json:"isPremium"`
}

// Options configures the synthesis client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the text-to-speech API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

const defaultTimeout = 60 * time.Second

// maxSynthesisChars bounds a single synthesis request; longer text is
// truncated at a rune boundary.
const maxSynthesisChars = 2000

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("speech: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: strings.TrimSpace(opts.APIKey), baseURL: baseURL, client: client}, nil
}

// Voices returns the curated narration voices offered to clients.
func (c *Client) Voices() []Voice {
	return []Voice{
		{ID: "rachel", Name: "Rachel", Gender: "female", Style: "warm", IsPremium: false},
		{ID: "adam", Name: "Adam", Gender: "male", Style: "deep", IsPremium: false},
		{ID: "bella", Name: "Bella", Gender: "female", Style: "soft", IsPremium: true},
		{ID: "daniel", Name: "Daniel", Gender: "male", Style: "british", IsPremium: true},
		{ID: "freya", Name: "Freya", Gender: "female", Style: "expressive", IsPremium: true},
	}
}

// voiceIDs maps friendly ids to provider voice ids.
var voiceIDs = map[string]string{
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"daniel": "onwK4e9ZLuTAKqWW03F9",
	"freya":  "jsCqWAovK2LkecY7zXl4",
}

// ResolveVoiceID translates a friendly voice id; unknown ids pass through so
// clients may address provider voices directly.
func (c *Client) ResolveVoiceID(voiceID string) string {
	if mapped, ok := voiceIDs[strings.ToLower(strings.TrimSpace(voiceID))]; ok {
		return mapped
	}
	return voiceID
}

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings"`
}

// Synthesize converts text to MP3 audio bytes with the given voice.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("speech: text is required")
	}
	if len(text) > maxSynthesisChars {
		// Back up to a rune boundary so the request never carries a torn
		// multi-byte sequence.
		cut := maxSynthesisChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: "eleven_multilingual_v2",
		VoiceSettings: map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("speech: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.ResolveVoiceID(voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: speech synthesis: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: speech synthesis: auth rejected (%d)", domain.ErrProviderFailure, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: speech synthesis: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: speech synthesis: read audio: %v", domain.ErrProviderFailure, err)
	}
	return audio, nil
}
