// Package feed はフィードのfind-or-create、検出、論理削除を提供する。
package feed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
)

// URLDetector はページURLからフィードURLを検出するインターフェース。
type URLDetector interface {
	Detect(ctx context.Context, pageURL string) (string, error)
}

// Service はフィードの登録・参照・論理削除を扱うサービス層。
type Service struct {
	feedRepo repository.FeedRepository
	detector URLDetector
	now      func() time.Time
}

// NewService はServiceを生成する。detectorがnilの場合、検出付き登録は入力URLをそのまま使う。
func NewService(feedRepo repository.FeedRepository, detector URLDetector) *Service {
	return &Service{
		feedRepo: feedRepo,
		detector: detector,
		now:      time.Now,
	}
}

// FindOrCreate はURLでフィードを探し、なければ作成する。
// 新規作成時のタイトルはinput.Titleが空ならURL。種別の既定はarticle。
func (s *Service) FindOrCreate(ctx context.Context, input model.FeedInput) (*model.Feed, bool, error) {
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

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = sourceURL
	}

	now := s.now()
	candidate := &model.Feed{
		ID:            uuid.New().String(),
		Title:         title,
		SourceURL:     sourceURL,
		Category:      strings.TrimSpace(input.Category),
		Kind:          kind,
		FetchStatus:   model.FetchStatusActive,
		NextFetchAt:   now,
		LastUpdatedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	feed, created, err := s.feedRepo.FindOrCreate(ctx, candidate)
	if err != nil {
		return nil, false, model.NewStoreUnavailableError(err)
	}
	if created {
		slog.Info("フィードを作成しました", "feed_id", feed.ID, "source_url", feed.SourceURL, "kind", feed.Kind)
	}
	return feed, created, nil
}

// Subscribe はdetectがtrueの場合にページからフィードURLを検出してからFindOrCreateする。
func (s *Service) Subscribe(ctx context.Context, input model.FeedInput, detect bool) (*model.Feed, bool, error) {
	if detect && s.detector != nil {
		pageURL, err := model.NormalizeSourceURL(input.URL)
		if err != nil {
			return nil, false, err
		}
		feedURL, err := s.detector.Detect(ctx, pageURL)
		if err != nil {
			return nil, false, err
		}
		input.URL = feedURL
	}
	return s.FindOrCreate(ctx, input)
}

// Get はフィードを取得する。削除済みも返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := s.feedRepo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(id)
	}
	return feed, nil
}

// List はフィード一覧を返す。
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error) {
	feeds, err := s.feedRepo.List(ctx, includeDeleted)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if feeds == nil {
		feeds = []*model.Feed{}
	}
	return feeds, nil
}

// MarkDeleted はフィードを論理削除する。所有するコンテンツはそのまま残る。
func (s *Service) MarkDeleted(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := s.feedRepo.MarkDeleted(ctx, id)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(id)
	}
	slog.Info("フィードを論理削除しました", "feed_id", id)
	return feed, nil
}

// RecountUnread は未読数をコンテンツから再集計する。
func (s *Service) RecountUnread(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := s.feedRepo.RecountUnread(ctx, id)
	if err != nil {
		return nil, model.NewStoreUnavailableError(err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(id)
	}
	return feed, nil
}
