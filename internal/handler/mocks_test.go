package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedshelf/internal/content"
	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/opml"
)

// --- モック定義 ---

// mockFeedService はFeedServiceInterfaceのモック実装。
type mockFeedService struct {
	subscribeFn     func(ctx context.Context, input model.FeedInput, detect bool) (*model.Feed, bool, error)
	getFn           func(ctx context.Context, id string) (*model.Feed, error)
	listFn          func(ctx context.Context, includeDeleted bool) ([]*model.Feed, error)
	markDeletedFn   func(ctx context.Context, id string) (*model.Feed, error)
	recountUnreadFn func(ctx context.Context, id string) (*model.Feed, error)
}

func (m *mockFeedService) Subscribe(ctx context.Context, input model.FeedInput, detect bool) (*model.Feed, bool, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, input, detect)
	}
	return nil, false, nil
}

func (m *mockFeedService) Get(ctx context.Context, id string) (*model.Feed, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewFeedNotFoundError(id)
}

func (m *mockFeedService) List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error) {
	if m.listFn != nil {
		return m.listFn(ctx, includeDeleted)
	}
	return []*model.Feed{}, nil
}

func (m *mockFeedService) MarkDeleted(ctx context.Context, id string) (*model.Feed, error) {
	if m.markDeletedFn != nil {
		return m.markDeletedFn(ctx, id)
	}
	return nil, model.NewFeedNotFoundError(id)
}

func (m *mockFeedService) RecountUnread(ctx context.Context, id string) (*model.Feed, error) {
	if m.recountUnreadFn != nil {
		return m.recountUnreadFn(ctx, id)
	}
	return nil, model.NewFeedNotFoundError(id)
}

// mockContentService はContentServiceInterfaceのモック実装。
type mockContentService struct {
	findOrCreateFn func(ctx context.Context, input model.ContentInput) (*model.Content, bool, error)
	getFn          func(ctx context.Context, id string) (*model.Content, error)
	listFn         func(ctx context.Context, feedID string, filter model.ContentFilter, cursor string, limit int) (*content.ListResult, error)
}

func (m *mockContentService) FindOrCreate(ctx context.Context, input model.ContentInput) (*model.Content, bool, error) {
	if m.findOrCreateFn != nil {
		return m.findOrCreateFn(ctx, input)
	}
	return nil, false, nil
}

func (m *mockContentService) Get(ctx context.Context, id string) (*model.Content, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewContentNotFoundError(id)
}

func (m *mockContentService) List(ctx context.Context, feedID string, filter model.ContentFilter, cursor string, limit int) (*content.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, feedID, filter, cursor, limit)
	}
	return &content.ListResult{}, nil
}

// mockStateService はStateServiceInterfaceのモック実装。
// 呼び出された操作名とIDを記録する。
type mockStateService struct {
	lastOp   string
	lastID   string
	lastText string
	lastPos  int
	result   *model.Content
	err      error
}

func (m *mockStateService) call(op, id string) (*model.Content, error) {
	m.lastOp = op
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &model.Content{ID: id, Kind: model.KindArticle}, nil
}

func (m *mockStateService) MarkRead(ctx context.Context, id string) (*model.Content, error) {
	return m.call("read", id)
}

func (m *mockStateService) ToggleFavorite(ctx context.Context, id string) (*model.Content, error) {
	return m.call("favorite", id)
}

func (m *mockStateService) MarkDeleted(ctx context.Context, id string) (*model.Content, error) {
	return m.call("delete", id)
}

func (m *mockStateService) UpdateSummary(ctx context.Context, id, text string) (*model.Content, error) {
	m.lastText = text
	return m.call("summary", id)
}

func (m *mockStateService) UpdateAISummary(ctx context.Context, id, text string) (*model.Content, error) {
	m.lastText = text
	return m.call("ai_summary", id)
}

func (m *mockStateService) UpdatePlaybackPosition(ctx context.Context, id string, seconds int) (*model.Content, error) {
	m.lastPos = seconds
	return m.call("playback", id)
}

// mockOPMLService はOPMLServiceInterfaceのモック実装。
type mockOPMLService struct {
	importFn func(ctx context.Context, r io.Reader) (*opml.ImportResult, error)
	exportFn func(ctx context.Context) ([]byte, error)
}

func (m *mockOPMLService) Import(ctx context.Context, r io.Reader) (*opml.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, r)
	}
	return &opml.ImportResult{}, nil
}

func (m *mockOPMLService) Export(ctx context.Context) ([]byte, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return []byte("<opml/>"), nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディをvにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
