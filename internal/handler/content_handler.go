package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/feedshelf/internal/content"
	"github.com/hitoshi/feedshelf/internal/middleware"
	"github.com/hitoshi/feedshelf/internal/model"
)

// ContentServiceInterface はコンテンツの作成と参照を行うサービスインターフェース。
type ContentServiceInterface interface {
	FindOrCreate(ctx context.Context, input model.ContentInput) (*model.Content, bool, error)
	Get(ctx context.Context, id string) (*model.Content, error)
	List(ctx context.Context, feedID string, filter model.ContentFilter, cursor string, limit int) (*content.ListResult, error)
}

// StateServiceInterface はコンテンツの状態変更サービスのインターフェース。
// 全操作は単一のコンテンツIDに対して行われる。
type StateServiceInterface interface {
	MarkRead(ctx context.Context, id string) (*model.Content, error)
	ToggleFavorite(ctx context.Context, id string) (*model.Content, error)
	MarkDeleted(ctx context.Context, id string) (*model.Content, error)
	UpdateSummary(ctx context.Context, id, text string) (*model.Content, error)
	UpdateAISummary(ctx context.Context, id, text string) (*model.Content, error)
	UpdatePlaybackPosition(ctx context.Context, id string, seconds int) (*model.Content, error)
}

// ContentHandler はコンテンツ管理のHTTPハンドラー。
type ContentHandler struct {
	service      ContentServiceInterface
	stateService StateServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface, stateService StateServiceInterface) *ContentHandler {
	return &ContentHandler{
		service:      service,
		stateService: stateService,
	}
}

// createContentRequest はコンテンツ登録リクエストのボディ。
type createContentRequest struct {
	URL             string     `json:"url"`
	Kind            string     `json:"kind"`
	FeedID          string     `json:"feed_id"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	Author          string     `json:"author"`
	Summary         string     `json:"summary"`
	PublishedAt     *time.Time `json:"published_at"`
	ImageURLs       []string   `json:"image_urls"`
	AudioURL        string     `json:"audio_url"`
	DurationSeconds int        `json:"duration_seconds"`
}

// summaryRequest は要約更新リクエストのボディ。
type summaryRequest struct {
	Text *string `json:"text"`
}

// playbackRequest は再生位置更新リクエストのボディ。
type playbackRequest struct {
	PositionSeconds *int `json:"position_seconds"`
}

// ListContents はフィードのコンテンツ一覧を取得する。
// GET /api/feeds/{id}/contents?filter=all|unread|favorite&cursor=xxx&limit=50
func (h *ContentHandler) ListContents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteError(w, r, model.NewInvalidRequestError("limitは正の整数で指定してください"))
			return
		}
		limit = n
	}

	result, err := h.service.List(r.Context(), chi.URLParam(r, "id"), model.ContentFilter(q.Get("filter")), q.Get("cursor"), limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := contentListResponse{
		Contents:   make([]contentResponse, 0, len(result.Contents)),
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}
	for _, c := range result.Contents {
		resp.Contents = append(resp.Contents, toContentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateContent は記事またはエピソードをfind-or-createする。
// 新規作成なら201、既存なら200を返す。
// POST /api/contents
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req createContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if req.URL == "" {
		middleware.WriteError(w, r, model.NewInvalidURLError("URLが空です"))
		return
	}

	c, created, err := h.service.FindOrCreate(r.Context(), model.ContentInput{
		FeedID:          req.FeedID,
		Kind:            model.Kind(req.Kind),
		URL:             req.URL,
		Title:           req.Title,
		Body:            req.Body,
		Author:          req.Author,
		Summary:         req.Summary,
		PublishedAt:     req.PublishedAt,
		ImageURLs:       req.ImageURLs,
		AudioURL:        req.AudioURL,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, createdStatus(created), toContentResponse(c))
}

// GetContent はコンテンツ詳細を取得する。論理削除済みも返す。
// GET /api/contents/{id}
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContentResponse(c))
}

// DeleteContent はコンテンツを論理削除する。
// DELETE /api/contents/{id}
func (h *ContentHandler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.stateService.MarkDeleted(r.Context(), chi.URLParam(r, "id")))
}

// MarkRead はコンテンツを既読にする。既読済みでも200を返す。
// PUT /api/contents/{id}/read
func (h *ContentHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.stateService.MarkRead(r.Context(), chi.URLParam(r, "id")))
}

// ToggleFavorite はお気に入りを反転する。
// POST /api/contents/{id}/favorite
func (h *ContentHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.stateService.ToggleFavorite(r.Context(), chi.URLParam(r, "id")))
}

// UpdateSummary は要約を上書きする。
// PUT /api/contents/{id}/summary
func (h *ContentHandler) UpdateSummary(w http.ResponseWriter, r *http.Request) {
	text, ok := h.decodeSummary(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.stateService.UpdateSummary(r.Context(), chi.URLParam(r, "id"), text))
}

// UpdateAISummary はAI要約を上書きする。
// PUT /api/contents/{id}/ai-summary
func (h *ContentHandler) UpdateAISummary(w http.ResponseWriter, r *http.Request) {
	text, ok := h.decodeSummary(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(h.stateService.UpdateAISummary(r.Context(), chi.URLParam(r, "id"), text))
}

// UpdatePlayback はエピソードの再生位置を更新する。
// PUT /api/contents/{id}/playback
func (h *ContentHandler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	var req playbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.PositionSeconds == nil {
		middleware.WriteError(w, r, model.NewInvalidRequestError("position_secondsは必須です"))
		return
	}
	h.respond(w, r)(h.stateService.UpdatePlaybackPosition(r.Context(), chi.URLParam(r, "id"), *req.PositionSeconds))
}

func (h *ContentHandler) decodeSummary(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req summaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return "", false
	}
	if req.Text == nil {
		middleware.WriteError(w, r, model.NewInvalidRequestError("textは必須です"))
		return "", false
	}
	return *req.Text, true
}

// respond は状態変更の結果を200またはエラーとして書き込む関数を返す。
func (h *ContentHandler) respond(w http.ResponseWriter, r *http.Request) func(*model.Content, error) {
	return func(c *model.Content, err error) {
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toContentResponse(c))
	}
}
