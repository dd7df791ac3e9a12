package opml

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
)

// exportTitle はエクスポートするOPMLのタイトル。
const exportTitle = "feedshelf subscriptions"

// FeedStore はOPMLの入出力に必要なフィード操作。
type FeedStore interface {
	FindOrCreate(ctx context.Context, input model.FeedInput) (*model.Feed, bool, error)
	List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error)
}

// ImportResult はインポートの集計結果。
type ImportResult struct {
	Created  int           `json:"created"`
	Existing int           `json:"existing"`
	Failed   []ImportError `json:"failed"`
}

// ImportError はインポートできなかったエントリ。
type ImportError struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Service はOPMLのインポートとエクスポートを行う。
type Service struct {
	feeds FeedStore
	now   func() time.Time
}

// NewService はServiceを生成する。
func NewService(feeds FeedStore) *Service {
	return &Service{feeds: feeds, now: time.Now}
}

// Import はOPMLのフィードエントリをカテゴリ付きでfind-or-createする。
// 個々のエントリの検証エラーはFailedに集計して続行し、ストア障害では中断する。
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	entries, err := Parse(r)
	if err != nil {
		return nil, model.NewInvalidOPMLError(err)
	}

	result := &ImportResult{Failed: []ImportError{}}
	for _, e := range entries {
		kind := model.KindArticle
		if e.Podcast {
			kind = model.KindPodcast
		}

		_, created, err := s.feeds.FindOrCreate(ctx, model.FeedInput{
			URL:      e.URL,
			Title:    e.Title,
			Category: e.Category,
			Kind:     kind,
		})
		if err != nil {
			if model.IsStoreUnavailable(err) {
				return result, err
			}
			result.Failed = append(result.Failed, ImportError{URL: e.URL, Message: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}

	slog.Info("OPMLインポート完了",
		"entries", len(entries),
		"created", result.Created,
		"existing", result.Existing,
		"failed", len(result.Failed),
	)
	return result, nil
}

// Export は論理削除されていないフィードをOPML 2.0として出力する。
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	feeds, err := s.feeds.List(ctx, false)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(feeds))
	for _, f := range feeds {
		entries = append(entries, Entry{
			Category: f.Category,
			Title:    f.Title,
			URL:      f.SourceURL,
			SiteURL:  f.SiteURL,
			Podcast:  f.Kind == model.KindPodcast,
		})
	}
	return Build(exportTitle, entries, s.now())
}
