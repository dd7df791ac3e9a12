package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedshelf/internal/middleware"
	"github.com/hitoshi/feedshelf/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// Subscribe はdetectがtrueならページからフィードURLを検出してからfind-or-createする。
	Subscribe(ctx context.Context, input model.FeedInput, detect bool) (*model.Feed, bool, error)
	// Get はフィードを取得する。削除済みも返す。
	Get(ctx context.Context, id string) (*model.Feed, error)
	// List はフィード一覧を返す。
	List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error)
	// MarkDeleted はフィードを論理削除する。
	MarkDeleted(ctx context.Context, id string) (*model.Feed, error)
	// RecountUnread は未読数を再集計する。
	RecountUnread(ctx context.Context, id string) (*model.Feed, error)
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{service: service}
}

// createFeedRequest はフィード登録リクエストのボディ。
type createFeedRequest struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Kind     string `json:"kind"`
	Detect   bool   `json:"detect"`
}

// ListFeeds はフィード一覧を返す。
// GET /api/feeds?include_deleted=true
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	includeDeleted := false
	if v := r.URL.Query().Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			middleware.WriteError(w, r, model.NewInvalidRequestError("include_deletedはtrueまたはfalseで指定してください"))
			return
		}
		includeDeleted = b
	}

	feeds, err := h.service.List(r.Context(), includeDeleted)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, toFeedResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateFeed はフィードをfind-or-createする。
// 新規作成なら201、既存なら200を返す。
// POST /api/feeds
func (h *FeedHandler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if req.URL == "" {
		middleware.WriteError(w, r, model.NewInvalidURLError("URLが空です"))
		return
	}

	feed, created, err := h.service.Subscribe(r.Context(), model.FeedInput{
		URL:      req.URL,
		Title:    req.Title,
		Category: req.Category,
		Kind:     model.Kind(req.Kind),
	}, req.Detect)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, createdStatus(created), toFeedResponse(feed))
}

// GetFeed はフィード詳細を取得する。
// GET /api/feeds/{id}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(feed))
}

// DeleteFeed はフィードを論理削除する。所有するコンテンツは残る。
// DELETE /api/feeds/{id}
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.MarkDeleted(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecountUnread は未読数をコンテンツから再集計する。
// POST /api/feeds/{id}/recount
func (h *FeedHandler) RecountUnread(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.RecountUnread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(feed))
}
