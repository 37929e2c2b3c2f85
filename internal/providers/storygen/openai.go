// Package storygen generates narrative text through an OpenAI-compatible
// chat-completion endpoint. The base URL is configurable because production
// points at a DeepSeek-hosting proxy rather than OpenAI itself.
package storygen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"server/internal/domain"
)

// Options configures the generation client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client generates, continues and titles stories.
type Client struct {
	client *openai.Client
	model  string
}

// tokensPerLengthUnit keeps generated stories deliberately short of a full
// arc so they end mid-scene and invite continuation.
const tokensPerLengthUnit = 300

const continuationMaxTokens = 600

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("storygen: api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if strings.TrimSpace(opts.BaseURL) != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

type generatedStory struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GenerateStory produces the opening of a new story for the given settings.
func (c *Client) GenerateStory(ctx context.Context, title string, settings domain.StorySettings) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: tokensPerLengthUnit * settings.Length,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildStoryPrompt(title, settings)},
			{Role: openai.ChatMessageRoleUser, Content: "Write the story now."},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate story: %v", domain.ErrProviderFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: generate story: empty response", domain.ErrProviderFailure)
	}

	var story generatedStory
	raw := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &story); err != nil {
		// Some models ignore the JSON response format; fall back to the raw
		// completion instead of failing the charged request.
		return strings.TrimSpace(raw), nil
	}
	if strings.TrimSpace(story.Content) == "" {
		return "", fmt.Errorf("%w: generate story: blank content", domain.ErrProviderFailure)
	}
	return story.Content, nil
}

// ContinueStory extends existing content in the same voice and settings.
func (c *Client) ContinueStory(ctx context.Context, content string, settings domain.StorySettings) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: continuationMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildContinuationPrompt(settings)},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: continue story: %v", domain.ErrProviderFailure, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: continue story: empty response", domain.ErrProviderFailure)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type titleSuggestions struct {
	Titles []string `json:"titles"`
}

// SuggestTitles proposes titles for existing content.
func (c *Client) SuggestTitles(ctx context.Context, content string) ([]string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 120,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: `Suggest three short, evocative titles for the story the user provides. ` +
					`Respond as JSON: {"titles": ["...", "...", "..."]}`,
			},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: suggest titles: %v", domain.ErrProviderFailure, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: suggest titles: empty response", domain.ErrProviderFailure)
	}
	var parsed titleSuggestions
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: suggest titles: %v", domain.ErrProviderFailure, err)
	}
	return parsed.Titles, nil
}

func buildStoryPrompt(title string, s domain.StorySettings) string {
	var b strings.Builder
	b.WriteString("You are an expert romantic fiction writer known for tasteful, sensual narratives.\n")
	b.WriteString("Generate a story with the following parameters:\n")
	fmt.Fprintf(&b, "- Time Period: %s\n", s.TimePeriod)
	fmt.Fprintf(&b, "- Location: %s\n", s.Location)
	fmt.Fprintf(&b, "- Atmosphere: %s\n", s.Atmosphere)
	fmt.Fprintf(&b, "- Protagonist Gender: %s\n", s.ProtagonistGender)
	fmt.Fprintf(&b, "- Partner Gender: %s\n", s.PartnerGender)
	fmt.Fprintf(&b, "- Relationship: %s\n", s.Relationship)
	fmt.Fprintf(&b, "- Writing Tone: %s\n", s.WritingTone)
	fmt.Fprintf(&b, "- Length: %d out of 5 (adjust word count accordingly)\n", s.Length)
	if s.ExplicitLevel != nil {
		fmt.Fprintf(&b, "Set the explicitness level to %d%% - the higher the percentage, the more explicit the content.\n", *s.ExplicitLevel)
	} else {
		b.WriteString("Keep the content moderately explicit unless otherwise specified.\n")
	}
	if title != "" {
		fmt.Fprintf(&b, "The story must directly involve the central concept of %q as its primary focus. "+
			"If the title is a person's name, they must be the main character; if it is an object, "+
			"that object must be central to the plot.\n", title)
	} else {
		b.WriteString("Generate an appropriate title for the story.\n")
	}
	if s.SettingDescription != "" {
		fmt.Fprintf(&b, "Setting description: %s\n", s.SettingDescription)
	}
	if s.ProtagonistDescription != "" {
		fmt.Fprintf(&b, "Protagonist description: %s\n", s.ProtagonistDescription)
	}
	if s.LoveInterestDescription != "" {
		fmt.Fprintf(&b, "Love interest description: %s\n", s.LoveInterestDescription)
	}
	b.WriteString("\nIMPORTANT: Make the story incomplete, ending on a cliffhanger or mid-scene so it invites continuation.\n")
	fmt.Fprintf(&b, "Format your response as JSON: {\"title\": %q, \"content\": \"full story text\"}", title)
	return b.String()
}

func buildContinuationPrompt(s domain.StorySettings) string {
	return fmt.Sprintf("You are continuing a story written in a %s tone, set in %s (%s). "+
		"The user message is the story so far. Continue it seamlessly from where it stops, "+
		"keeping the same characters, voice and tense. Respond with the continuation text only, "+
		"no preamble and no recap.", s.WritingTone, s.Location, s.TimePeriod)
}
