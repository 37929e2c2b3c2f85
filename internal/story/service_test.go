package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/entitlement"
	"server/internal/ledger"
)

type memUsers struct {
	users     map[string]*domain.User
	linkErr   error
	removeErr error
	appended  map[string][]string
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{users: map[string]*domain.User{}, appended: map[string][]string{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) DebitCredits(ctx context.Context, userID string, amount int) (int, error) {
	u, ok := m.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	if u.Credits < amount {
		return 0, domain.ErrInsufficientCredits
	}
	u.Credits -= amount
	return u.Credits, nil
}

func (m *memUsers) CreditCredits(ctx context.Context, userID string, amount int) (int, error) {
	u, ok := m.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	u.Credits += amount
	return u.Credits, nil
}

func (m *memUsers) Entitlements(ctx context.Context, userID string) (entitlement.State, error) {
	u, ok := m.users[userID]
	if !ok {
		return entitlement.State{}, domain.ErrUserNotFound
	}
	return entitlement.State{Credits: u.Credits, IsPremium: u.IsPremium}, nil
}

func (m *memUsers) AppendStory(ctx context.Context, userID, storyID string) error {
	if m.linkErr != nil {
		return m.linkErr
	}
	m.appended[userID] = append(m.appended[userID], storyID)
	if u, ok := m.users[userID]; ok {
		u.StoryCount++
	}
	return nil
}

func (m *memUsers) RemoveStory(ctx context.Context, userID, storyID string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	ids := m.appended[userID]
	for i, id := range ids {
		if id == storyID {
			m.appended[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if u, ok := m.users[userID]; ok && u.StoryCount > 0 {
		u.StoryCount--
	}
	return nil
}

func (m *memUsers) ApplyPaymentEvent(ctx context.Context, ev domain.PaymentEvent) (entitlement.State, bool, error) {
	return entitlement.State{}, false, errors.New("not implemented")
}

func (m *memUsers) QueueReconciliation(ctx context.Context, ev domain.PaymentEvent, cause string) error {
	return nil
}

func (m *memUsers) PendingReconciliation(ctx context.Context, limit int) ([]entitlement.ReconciliationTask, error) {
	return nil, nil
}

func (m *memUsers) ResolveReconciliation(ctx context.Context, taskID string) error { return nil }

func (m *memUsers) BumpReconciliation(ctx context.Context, taskID, cause string) error { return nil }

type memStories struct {
	stories map[string]*domain.Story
	nextID  int
}

func newMemStories() *memStories {
	return &memStories{stories: map[string]*domain.Story{}}
}

func (m *memStories) Insert(ctx context.Context, st *domain.Story) error {
	m.nextID++
	st.ID = fmt.Sprintf("story-%d", m.nextID)
	st.CreatedAt = time.Now()
	st.UpdatedAt = st.CreatedAt
	cp := *st
	m.stories[st.ID] = &cp
	return nil
}

func (m *memStories) Get(ctx context.Context, id string) (*domain.Story, error) {
	st, ok := m.stories[id]
	if !ok {
		return nil, domain.ErrStoryNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStories) AppendContent(ctx context.Context, id, chunk string) (string, time.Time, error) {
	st, ok := m.stories[id]
	if !ok {
		return "", time.Time{}, domain.ErrStoryNotFound
	}
	st.Content += chunk
	st.UpdatedAt = time.Now()
	return st.Content, st.UpdatedAt, nil
}

func (m *memStories) Update(ctx context.Context, id, userID, title, content string) (*domain.Story, error) {
	st, ok := m.stories[id]
	if !ok || st.UserID != userID {
		return nil, domain.ErrStoryNotFound
	}
	if strings.TrimSpace(title) != "" {
		st.Title = title
	}
	if strings.TrimSpace(content) != "" {
		st.Content = content
	}
	cp := *st
	return &cp, nil
}

func (m *memStories) SetVisibility(ctx context.Context, id, userID string, isPublic bool) (*domain.Story, error) {
	st, ok := m.stories[id]
	if !ok || st.UserID != userID {
		return nil, domain.ErrStoryNotFound
	}
	st.IsPublic = isPublic
	cp := *st
	return &cp, nil
}

func (m *memStories) SetAudioURL(ctx context.Context, id, audioURL string) error {
	st, ok := m.stories[id]
	if !ok {
		return domain.ErrStoryNotFound
	}
	st.AudioURL = audioURL
	return nil
}

func (m *memStories) Delete(ctx context.Context, id, userID string) error {
	st, ok := m.stories[id]
	if !ok || st.UserID != userID {
		return domain.ErrStoryNotFound
	}
	delete(m.stories, id)
	return nil
}

func (m *memStories) ListForUser(ctx context.Context, userID string) ([]domain.Story, error) {
	var out []domain.Story
	for _, st := range m.stories {
		if st.UserID == userID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (m *memStories) ListPublic(ctx context.Context, limit int) ([]domain.Story, error) {
	var out []domain.Story
	for _, st := range m.stories {
		if st.IsPublic {
			out = append(out, *st)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeGen struct {
	story        string
	continuation string
	err          error
	calls        int
}

func (g *fakeGen) GenerateStory(ctx context.Context, title string, settings domain.StorySettings) (string, error) {
	g.calls++
	return g.story, g.err
}

func (g *fakeGen) ContinueStory(ctx context.Context, content string, settings domain.StorySettings) (string, error) {
	g.calls++
	return g.continuation, g.err
}

func validSettings() domain.StorySettings {
	return domain.StorySettings{
		TimePeriod:        "victorian",
		Location:          "london",
		Atmosphere:        "stormy",
		ProtagonistGender: "female",
		PartnerGender:     "male",
		Relationship:      "rivals",
		WritingTone:       "dramatic",
		NarrationVoice:    "aria",
		Length:            3,
	}
}

func newTestService(users *memUsers, stories *memStories, gen *fakeGen) *Service {
	guard := ledger.NewGuard(users, zerolog.Nop())
	return NewService(stories, users, guard, gen, time.Second, zerolog.Nop())
}

func TestCreateDebitsAndLinks(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10})
	stories := newMemStories()
	svc := newTestService(users, stories, &fakeGen{story: "a tale"})

	st, err := svc.Create(context.Background(), "u1", "The Storm", validSettings(), false)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if st.Content != "a tale" {
		t.Fatalf("content = %q", st.Content)
	}
	if st.CreditsCost != domain.StoryCreditCost {
		t.Fatalf("creditsCost = %d", st.CreditsCost)
	}
	if users.users["u1"].Credits != 9 {
		t.Fatalf("credits = %d, want 9", users.users["u1"].Credits)
	}
	if got := users.appended["u1"]; len(got) != 1 || got[0] != st.ID {
		t.Fatalf("story not linked to owner: %v", got)
	}
}

func TestCreateInsufficientCreditsLeavesNothingBehind(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 0})
	stories := newMemStories()
	gen := &fakeGen{story: "never"}
	svc := newTestService(users, stories, gen)

	_, err := svc.Create(context.Background(), "u1", "Broke", validSettings(), false)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if gen.calls != 0 {
		t.Fatal("generator ran despite failed debit")
	}
	if len(stories.stories) != 0 {
		t.Fatal("story persisted despite failed debit")
	}
	if users.users["u1"].Credits != 0 {
		t.Fatalf("credits = %d, want 0", users.users["u1"].Credits)
	}
}

func TestCreateRefundsOnGeneratorFailure(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 5})
	stories := newMemStories()
	svc := newTestService(users, stories, &fakeGen{err: errors.New("upstream 500")})

	_, err := svc.Create(context.Background(), "u1", "Doomed", validSettings(), false)
	var actionErr *ledger.ActionFailedError
	if !errors.As(err, &actionErr) {
		t.Fatalf("err = %v, want *ActionFailedError", err)
	}
	if users.users["u1"].Credits != 5 {
		t.Fatalf("credits = %d, want 5 after refund", users.users["u1"].Credits)
	}
	if len(stories.stories) != 0 {
		t.Fatal("story persisted despite generation failure")
	}
}

func TestCreateFreeTierStoryLimit(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 100, StoryCount: domain.FreeStoryLimit})
	stories := newMemStories()
	gen := &fakeGen{story: "x"}
	svc := newTestService(users, stories, gen)

	_, err := svc.Create(context.Background(), "u1", "Fourth", validSettings(), false)
	if !errors.Is(err, domain.ErrStoryLimitReached) {
		t.Fatalf("err = %v, want ErrStoryLimitReached", err)
	}
	if users.users["u1"].Credits != 100 {
		t.Fatalf("credits = %d, plan limits must not charge", users.users["u1"].Credits)
	}
	if gen.calls != 0 {
		t.Fatal("generator ran for a capped user")
	}
}

func TestCreatePremiumBypassesStoryLimit(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10, StoryCount: 50, IsPremium: true})
	svc := newTestService(users, newMemStories(), &fakeGen{story: "more"})

	if _, err := svc.Create(context.Background(), "u1", "Fifty-first", validSettings(), false); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if users.users["u1"].Credits != 9 {
		t.Fatalf("credits = %d, premium still pays per story", users.users["u1"].Credits)
	}
}

func TestCreatePublicRequiresPremium(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10})
	gen := &fakeGen{story: "x"}
	svc := newTestService(users, newMemStories(), gen)

	_, err := svc.Create(context.Background(), "u1", "Shared", validSettings(), true)
	if !errors.Is(err, domain.ErrVisibilityDenied) {
		t.Fatalf("err = %v, want ErrVisibilityDenied", err)
	}
	if users.users["u1"].Credits != 10 {
		t.Fatalf("credits = %d, policy check must run before the debit", users.users["u1"].Credits)
	}
	if gen.calls != 0 {
		t.Fatal("generator ran despite policy denial")
	}
}

func TestCreateSurvivesLinkFailure(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10})
	users.linkErr = errors.New("write conflict")
	stories := newMemStories()
	svc := newTestService(users, stories, &fakeGen{story: "orphan"})

	st, err := svc.Create(context.Background(), "u1", "Unlinked", validSettings(), false)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, ok := stories.stories[st.ID]; !ok {
		t.Fatal("story missing despite successful generation")
	}
}

func TestContinueChargesOwnerAndAppends(t *testing.T) {
	users := newMemUsers(
		&domain.User{ID: "owner", Credits: 4, IsPremium: true},
		&domain.User{ID: "reader", Credits: 99},
	)
	stories := newMemStories()
	seed := &domain.Story{UserID: "owner", Title: "Serial", Content: "chapter one", Settings: validSettings(), IsPublic: true}
	if err := stories.Insert(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(users, stories, &fakeGen{continuation: "chapter two"})

	st, err := svc.Continue(context.Background(), seed.ID)
	if err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}
	want := "chapter one" + domain.ContinuationSeparator + "chapter two"
	if st.Content != want {
		t.Fatalf("content = %q, want %q", st.Content, want)
	}
	if users.users["owner"].Credits != 3 {
		t.Fatalf("owner credits = %d, want 3", users.users["owner"].Credits)
	}
	if users.users["reader"].Credits != 99 {
		t.Fatalf("reader credits = %d, continuation must charge the owner", users.users["reader"].Credits)
	}
}

func TestContinueRefundsWhenGenerationFails(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "owner", Credits: 2})
	stories := newMemStories()
	seed := &domain.Story{UserID: "owner", Content: "start", Settings: validSettings()}
	if err := stories.Insert(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(users, stories, &fakeGen{err: errors.New("timeout")})

	_, err := svc.Continue(context.Background(), seed.ID)
	var actionErr *ledger.ActionFailedError
	if !errors.As(err, &actionErr) {
		t.Fatalf("err = %v, want *ActionFailedError", err)
	}
	if users.users["owner"].Credits != 2 {
		t.Fatalf("credits = %d, want 2 after refund", users.users["owner"].Credits)
	}
	got, _ := stories.Get(context.Background(), seed.ID)
	if got.Content != "start" {
		t.Fatalf("content mutated: %q", got.Content)
	}
}

func TestGetHidesPrivateStoriesFromStrangers(t *testing.T) {
	stories := newMemStories()
	seed := &domain.Story{UserID: "owner", Content: "secret", Settings: validSettings()}
	if err := stories.Insert(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(newMemUsers(), stories, &fakeGen{})

	if _, err := svc.Get(context.Background(), "stranger", seed.ID); !errors.Is(err, domain.ErrStoryNotFound) {
		t.Fatalf("err = %v, want ErrStoryNotFound", err)
	}
	if _, err := svc.Get(context.Background(), "owner", seed.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
}

func TestSetVisibilityChecksOwnershipThenPolicy(t *testing.T) {
	users := newMemUsers(
		&domain.User{ID: "owner", Credits: 1},
		&domain.User{ID: "premium-owner", Credits: 1, IsPremium: true},
	)
	stories := newMemStories()
	seed := &domain.Story{UserID: "owner", Content: "x", Settings: validSettings()}
	if err := stories.Insert(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(users, stories, &fakeGen{})

	if _, err := svc.SetVisibility(context.Background(), "stranger", seed.ID, true); !errors.Is(err, domain.ErrNotStoryOwner) {
		t.Fatalf("err = %v, want ErrNotStoryOwner", err)
	}
	if _, err := svc.SetVisibility(context.Background(), "owner", seed.ID, true); !errors.Is(err, domain.ErrVisibilityDenied) {
		t.Fatalf("err = %v, want ErrVisibilityDenied for free owner", err)
	}
	// Going private is always allowed.
	if _, err := svc.SetVisibility(context.Background(), "owner", seed.ID, false); err != nil {
		t.Fatalf("going private failed: %v", err)
	}
}

func TestDeleteUnlinksFromOwner(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10})
	stories := newMemStories()
	svc := newTestService(users, stories, &fakeGen{story: "gone soon"})

	st, err := svc.Create(context.Background(), "u1", "Ephemeral", validSettings(), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), "u1", st.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(users.appended["u1"]) != 0 {
		t.Fatalf("ownership link not removed: %v", users.appended["u1"])
	}
	if _, err := stories.Get(context.Background(), st.ID); !errors.Is(err, domain.ErrStoryNotFound) {
		t.Fatal("story still present after delete")
	}
}

func TestDeleteSurvivesUnlinkFailure(t *testing.T) {
	users := newMemUsers(&domain.User{ID: "u1", Credits: 10})
	stories := newMemStories()
	svc := newTestService(users, stories, &fakeGen{story: "gone soon"})

	st, err := svc.Create(context.Background(), "u1", "Sticky Link", validSettings(), false)
	if err != nil {
		t.Fatal(err)
	}
	users.removeErr = errors.New("write conflict")

	// The row is already gone; a stale ownership link must not fail the delete.
	if err := svc.Delete(context.Background(), "u1", st.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := stories.Get(context.Background(), st.ID); !errors.Is(err, domain.ErrStoryNotFound) {
		t.Fatal("story still present after delete")
	}
	if len(users.appended["u1"]) != 1 {
		t.Fatalf("stale link unexpectedly cleared: %v", users.appended["u1"])
	}
}
