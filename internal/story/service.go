// Package story coordinates the credit-metered story lifecycle: creation,
// continuation, visibility and deletion.
package story

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/entitlement"
	"server/internal/ledger"
	"server/internal/policy"
)

// Generator is the external narrative-generation collaborator.
type Generator interface {
	GenerateStory(ctx context.Context, title string, settings domain.StorySettings) (string, error)
	ContinueStory(ctx context.Context, content string, settings domain.StorySettings) (string, error)
}

// Service composes the entitlement store, the ledger guard and the external
// generator into the create/continue use cases.
type Service struct {
	stories Store
	users   entitlement.Store
	guard   *ledger.Guard
	gen     Generator
	timeout time.Duration
	logger  zerolog.Logger
}

func NewService(stories Store, users entitlement.Store, guard *ledger.Guard, gen Generator, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Service{stories: stories, users: users, guard: guard, gen: gen, timeout: timeout, logger: logger}
}

// Create generates and persists a new story for the user.
//
// The free-tier story cap and the visibility policy are checked before any
// credits move: they are plan limits, not resource costs. The generation
// call itself runs under the ledger guard, so a failed or timed-out
// generation refunds the debit.
func (s *Service) Create(ctx context.Context, userID, title string, settings domain.StorySettings, isPublic bool) (*domain.Story, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AtStoryLimit() {
		return nil, domain.ErrStoryLimitReached
	}
	if err := policy.CanSetVisibility(user, isPublic); err != nil {
		return nil, err
	}

	content, err := s.guard.ChargeAndRun(ctx, userID, domain.StoryCreditCost, "story_generation", func(ctx context.Context) (string, error) {
		genCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.gen.GenerateStory(genCtx, title, settings)
	})
	if err != nil {
		return nil, err
	}

	st := &domain.Story{
		UserID:      userID,
		Title:       title,
		Content:     content,
		Settings:    settings,
		IsPublic:    isPublic,
		Category:    "romance",
		CreditsCost: domain.StoryCreditCost,
	}
	if err := s.stories.Insert(ctx, st); err != nil {
		return nil, err
	}

	// Linking is a separate write on the user document. If it fails the
	// story exists but is not counted toward the free-tier cap; surface that
	// loudly instead of hiding it, a sweep can relink later.
	if err := s.users.AppendStory(context.WithoutCancel(ctx), userID, st.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("story_id", st.ID).
			Msg("story persisted but not linked to owner")
	}
	return st, nil
}

// Continue extends an existing story. The story's owner is charged,
// mirroring creation, and the continuation is appended after a paragraph
// boundary; existing content is never rewritten.
func (s *Service) Continue(ctx context.Context, storyID string) (*domain.Story, error) {
	st, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetUser(ctx, st.UserID)
	if err != nil {
		return nil, err
	}

	continuation, err := s.guard.ChargeAndRun(ctx, owner.ID, domain.StoryCreditCost, "story_continuation", func(ctx context.Context) (string, error) {
		genCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.gen.ContinueStory(genCtx, st.Content, st.Settings)
	})
	if err != nil {
		return nil, err
	}

	content, updatedAt, err := s.stories.AppendContent(ctx, st.ID, domain.ContinuationSeparator+continuation)
	if err != nil {
		// The owner paid for text that was generated but not persisted.
		// Refunding here would double-compensate if the write actually
		// landed; log with full context for manual follow-up instead.
		s.logger.Error().Err(err).Str("story_id", st.ID).Str("user_id", owner.ID).
			Msg("continuation generated but append failed")
		return nil, err
	}
	st.Content = content
	st.UpdatedAt = updatedAt
	return st, nil
}

// Get returns a story, hiding private stories from anyone but their owner.
func (s *Service) Get(ctx context.Context, callerID, storyID string) (*domain.Story, error) {
	st, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !st.IsPublic && st.UserID != callerID {
		return nil, domain.ErrStoryNotFound
	}
	return st, nil
}

// SetVisibility toggles public sharing, subject to the visibility policy.
func (s *Service) SetVisibility(ctx context.Context, callerID, storyID string, isPublic bool) (*domain.Story, error) {
	st, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if st.UserID != callerID {
		return nil, domain.ErrNotStoryOwner
	}
	user, err := s.users.GetUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanSetVisibility(user, isPublic); err != nil {
		return nil, err
	}
	return s.stories.SetVisibility(ctx, storyID, callerID, isPublic)
}

// Update applies owner edits to title and content.
func (s *Service) Update(ctx context.Context, callerID, storyID, title, content string) (*domain.Story, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(content) == "" {
		return s.Get(ctx, callerID, storyID)
	}
	return s.stories.Update(ctx, storyID, callerID, title, content)
}

// AttachAudio records the narration audio URL on an owned story.
func (s *Service) AttachAudio(ctx context.Context, callerID, storyID, audioURL string) error {
	st, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return err
	}
	if st.UserID != callerID {
		return domain.ErrNotStoryOwner
	}
	return s.stories.SetAudioURL(ctx, storyID, audioURL)
}

// Delete removes a story and its ownership link.
func (s *Service) Delete(ctx context.Context, callerID, storyID string) error {
	if err := s.stories.Delete(ctx, storyID, callerID); err != nil {
		return err
	}
	// The story row is gone; a stale ownership link only inflates the
	// derived story count. Surface it loudly for later repair instead of
	// failing a delete that already happened.
	if err := s.users.RemoveStory(ctx, callerID, storyID); err != nil {
		s.logger.Error().Err(err).Str("user_id", callerID).Str("story_id", storyID).
			Msg("story deleted but owner link not removed")
	}
	return nil
}

// ListForUser returns the caller's stories, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Story, error) {
	return s.stories.ListForUser(ctx, userID)
}

// ListPublic returns the community feed.
func (s *Service) ListPublic(ctx context.Context, limit int) ([]domain.Story, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.stories.ListPublic(ctx, limit)
}
