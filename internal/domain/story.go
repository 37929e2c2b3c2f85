package domain

import (
	"fmt"
	"strings"
	"time"
)

// StoryCreditCost is the fixed price of a generation or continuation call.
// Stories record the cost they were charged so pricing can vary later
// without rewriting history.
const StoryCreditCost = 1

// ContinuationSeparator joins existing story content with each appended
// continuation. Content is append-only: continuations never replace or
// reorder what came before.
const ContinuationSeparator = "\n\n"

// Story is a generated narrative owned by a single user.
type Story struct {
	ID          string
	UserID      string
	Title       string
	Content     string
	Settings    StorySettings
	IsPublic    bool
	AudioURL    string
	ImageURL    string
	Category    string
	Likes       int
	Plays       int
	CreditsCost int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StorySettings is the validated generation configuration. It replaces the
// open settings map the clients send with an explicit structure checked at
// the boundary.
type StorySettings struct {
	TimePeriod        string `json:"timePeriod"`
	Location          string `json:"location"`
	Atmosphere        string `json:"atmosphere"`
	ProtagonistGender string `json:"protagonistGender"`
	PartnerGender     string `json:"partnerGender"`
	Relationship      string `json:"relationship"`
	WritingTone       string `json:"writingTone"`
	NarrationVoice    string `json:"narrationVoice"`
	Length            int    `json:"length"`

	SettingDescription      string `json:"settingDescription,omitempty"`
	ProtagonistDescription  string `json:"protagonistDescription,omitempty"`
	LoveInterestDescription string `json:"loveInterestDescription,omitempty"`
	ExplicitLevel           *int   `json:"explicitLevel,omitempty"`
}

// Validate checks required fields and ranges.
func (s StorySettings) Validate() error {
	required := map[string]string{
		"timePeriod":        s.TimePeriod,
		"location":          s.Location,
		"atmosphere":        s.Atmosphere,
		"protagonistGender": s.ProtagonistGender,
		"partnerGender":     s.PartnerGender,
		"relationship":      s.Relationship,
		"writingTone":       s.WritingTone,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidSettings, field)
		}
	}
	if s.Length < 1 || s.Length > 5 {
		return fmt.Errorf("%w: length must be between 1 and 5", ErrInvalidSettings)
	}
	if s.ExplicitLevel != nil && (*s.ExplicitLevel < 0 || *s.ExplicitLevel > 100) {
		return fmt.Errorf("%w: explicitLevel must be between 0 and 100", ErrInvalidSettings)
	}
	return nil
}
