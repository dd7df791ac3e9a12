// Package content は記事・エピソードのfind-or-create、一覧、状態変更を提供する。
package content

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
	"github.com/hitoshi/feedshelf/internal/security"
)

const (
	// DefaultListLimit は一覧取得の既定件数。
	DefaultListLimit = 50
	// MaxListLimit は一覧取得の上限件数。
	MaxListLimit = 200
)

// Service はコンテンツの作成と参照を扱うサービス層。
type Service struct {
	contentRepo repository.ContentRepository
	feedRepo    repository.FeedRepository
	sanitizer   security.Sanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	contentRepo repository.ContentRepository,
	feedRepo repository.FeedRepository,
	sanitizer security.Sanitizer,
) *Service {
	return &Service{
		contentRepo: contentRepo,
		feedRepo:    feedRepo,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// ListResult はListの戻り値。
type ListResult struct {
	Contents   []*model.Content
	NextCursor string
	HasMore    bool
}

// FindOrCreateArticle は記事をURLで探し、なければ作成する。
func (s *Service) FindOrCreateArticle(ctx context.Context, input model.ContentInput) (*model.Content, bool, error) {
	input.Kind = model.KindArticle
	return s.FindOrCreate(ctx, input)
}

// FindOrCreateEpisode はポッドキャストのエピソードをURLで探し、なければ作成する。
func (s *Service) FindOrCreateEpisode(ctx context.Context, input model.ContentInput) (*model.Content, bool, error) {
	input.Kind = model.KindPodcast
	return s.FindOrCreate(ctx, input)
}

// FindOrCreate は(kind, URL)でコンテンツを探し、なければ作成する。
// FeedIDを指定した場合、フィードが存在しなければFEED_NOT_FOUNDを返す。
// 既存レコードが見つかった場合、inputの他の値は使われない。
func (s *Service) FindOrCreate(ctx context.Context, input model.ContentInput) (*model.Content, bool, error) {
	sourceURL, err := model.NormalizeSourceURL(input.URL)
	if err != nil {
		return nil, false, err
	}

	kind := input.Kind
	if kind == "" {
		kind = model.KindArticle
	}
	if !kind.Valid() {
		return nil, false, model.NewInvalidKindError(string(kind))
	}
	if input.DurationSeconds < 0 {
		return nil, false, model.NewInvalidRequestError("duration_secondsは0以上で指定してください")
	}

	if input.FeedID != "" {
		feed, err := s.feedRepo.FindByID(ctx, input.FeedID)
		if err != nil {
			return nil, false, model.NewStoreUnavailableError(err)
		}
		if feed == nil {
			return nil, false, model.NewFeedNotFoundError(input.FeedID)
		}
	}

	now := s.now()
	publishedAt := now
	if input.PublishedAt != nil && !input.PublishedAt.IsZero() {
		publishedAt = *input.PublishedAt
	}

	candidate := &model.Content{
		ID:              uuid.New().String(),
		FeedID:          input.FeedID,
		Kind:            kind,
		Title:           strings.TrimSpace(input.Title),
		Body:            s.sanitize(input.Body),
		SourceURL:       sourceURL,
		GUID:            input.GUID,
		Author:          strings.TrimSpace(input.Author),
		PublishedAt:     publishedAt,
		Summary:         input.Summary,
		ImageURLs:       input.ImageURLs,
		AudioURL:        input.AudioURL,
		DurationSeconds: input.DurationSeconds,
		LastUpdatedAt:   now,
		CreatedAt:       now,
	}

	c, created, err := s.contentRepo.FindOrCreate(ctx, candidate)
	if err != nil {
		return nil, false, model.NewStoreUnavailableError(err)
	}
	return c, created, nil
}

func (s *Service) sanitize(body string) string {
	if s.sanitizer == nil {
		return body
	}
	return s.sanitizer.Sanitize(body)
}

// Get はコンテンツを取得する。論理削除済みも返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Content, error) {
	c, err := s.contentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if c == nil {
		return nil, model.NewContentNotFoundError(id)
	}
	return c, nil
}

// List はフィードのコンテンツ一覧をpublished_at降順で返す。論理削除済みは含まない。
// limit+1件を取得してHasMoreを判定する。
func (s *Service) List(
	ctx context.Context,
	feedID string,
	filter model.ContentFilter,
	cursor string,
	limit int,
) (*ListResult, error) {
	if filter == "" {
		filter = model.ContentFilterAll
	}
	switch filter {
	case model.ContentFilterAll, model.ContentFilterUnread, model.ContentFilterFavorite:
	default:
		return nil, model.NewInvalidFilterError(string(filter))
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var pos *repository.Cursor
	if cursor != "" {
		decoded, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		pos = decoded
	}

	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}

	contents, err := s.contentRepo.ListByFeed(ctx, feedID, filter, pos, limit+1)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}

	result := &ListResult{Contents: contents}
	if len(contents) > limit {
		result.Contents = contents[:limit]
		result.HasMore = true
		last := result.Contents[limit-1]
		result.NextCursor = EncodeCursor(last.PublishedAt, last.ID)
	}
	if result.Contents == nil {
		result.Contents = []*model.Content{}
	}
	return result, nil
}
