package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Store persists stories. Content mutation through AppendContent is
// concatenation inside the database, so existing text can never be replaced
// by a concurrent continuation.
type Store interface {
	Insert(ctx context.Context, s *domain.Story) error
	Get(ctx context.Context, id string) (*domain.Story, error)
	AppendContent(ctx context.Context, id, chunk string) (string, time.Time, error)
	Update(ctx context.Context, id, userID, title, content string) (*domain.Story, error)
	SetVisibility(ctx context.Context, id, userID string, isPublic bool) (*domain.Story, error)
	SetAudioURL(ctx context.Context, id, audioURL string) error
	Delete(ctx context.Context, id, userID string) error
	ListForUser(ctx context.Context, userID string) ([]domain.Story, error)
	ListPublic(ctx context.Context, limit int) ([]domain.Story, error)
}

// PGStore implements Store on Postgres through the shared SQL runner.
type PGStore struct {
	sql infra.SQLExecutor
}

func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

func (s *PGStore) Insert(ctx context.Context, st *domain.Story) error {
	settings, err := json.Marshal(st.Settings)
	if err != nil {
		return fmt.Errorf("marshal story settings: %w", err)
	}
	row := s.sql.QueryRow(ctx, sqlinline.QInsertStory,
		st.UserID, st.Title, st.Content, settings, st.IsPublic, st.Category, st.CreditsCost)
	if err := row.Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return fmt.Errorf("insert story for user %s: %w", st.UserID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*domain.Story, error) {
	return scanStory(s.sql.QueryRow(ctx, sqlinline.QSelectStoryByID, id))
}

func (s *PGStore) AppendContent(ctx context.Context, id, chunk string) (string, time.Time, error) {
	var content string
	var updatedAt time.Time
	err := s.sql.QueryRow(ctx, sqlinline.QAppendStoryContent, id, chunk).Scan(&content, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, domain.ErrStoryNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("append content to story %s: %w", id, err)
	}
	return content, updatedAt, nil
}

func (s *PGStore) Update(ctx context.Context, id, userID, title, content string) (*domain.Story, error) {
	return scanStory(s.sql.QueryRow(ctx, sqlinline.QUpdateStory, id, userID, title, content))
}

func (s *PGStore) SetVisibility(ctx context.Context, id, userID string, isPublic bool) (*domain.Story, error) {
	return scanStory(s.sql.QueryRow(ctx, sqlinline.QUpdateStoryVisibility, id, userID, isPublic))
}

func (s *PGStore) SetAudioURL(ctx context.Context, id, audioURL string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QSetStoryAudioURL, id, audioURL); err != nil {
		return fmt.Errorf("set audio url on story %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id, userID string) error {
	var deleted string
	err := s.sql.QueryRow(ctx, sqlinline.QDeleteStory, id, userID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrStoryNotFound
	}
	if err != nil {
		return fmt.Errorf("delete story %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]domain.Story, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListUserStories, userID)
	if err != nil {
		return nil, fmt.Errorf("list stories for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectStories(rows)
}

func (s *PGStore) ListPublic(ctx context.Context, limit int) ([]domain.Story, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListPublicStories, limit)
	if err != nil {
		return nil, fmt.Errorf("list public stories: %w", err)
	}
	defer rows.Close()
	return collectStories(rows)
}

func scanStory(row pgx.Row) (*domain.Story, error) {
	var st domain.Story
	var settings []byte
	err := row.Scan(&st.ID, &st.UserID, &st.Title, &st.Content, &settings, &st.IsPublic,
		&st.AudioURL, &st.ImageURL, &st.Category, &st.Likes, &st.Plays, &st.CreditsCost,
		&st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan story: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &st.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal story settings: %w", err)
		}
	}
	return &st, nil
}

func collectStories(rows pgx.Rows) ([]domain.Story, error) {
	var stories []domain.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *st)
	}
	return stories, rows.Err()
}

var _ Store = (*PGStore)(nil)
