package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限（1MB）。
const maxJSONBodySize = 1 << 20

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	SourceURL         string    `json:"source_url"`
	SiteURL           string    `json:"site_url"`
	IconURL           string    `json:"icon_url"`
	Category          string    `json:"category"`
	Kind              string    `json:"kind"`
	UnreadCount       int       `json:"unread_count"`
	FetchStatus       string    `json:"fetch_status"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	NextFetchAt       time.Time `json:"next_fetch_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`
	IsDeleted         bool      `json:"is_deleted"`
	CreatedAt         time.Time `json:"created_at"`
}

// contentResponse はコンテンツ情報のAPIレスポンス。
type contentResponse struct {
	ID                      string    `json:"id"`
	FeedID                  string    `json:"feed_id,omitempty"`
	Kind                    string    `json:"kind"`
	Title                   string    `json:"title"`
	Body                    string    `json:"body"` // サニタイズ済みHTML
	SourceURL               string    `json:"source_url"`
	Author                  string    `json:"author"`
	PublishedAt             time.Time `json:"published_at"`
	Summary                 string    `json:"summary"`
	AISummary               string    `json:"ai_summary"`
	IsRead                  bool      `json:"is_read"`
	IsFavorite              bool      `json:"is_favorite"`
	IsDeleted               bool      `json:"is_deleted"`
	ImageURLs               []string  `json:"image_urls"`
	AudioURL                string    `json:"audio_url,omitempty"`
	DurationSeconds         int       `json:"duration_seconds,omitempty"`
	PlaybackPositionSeconds int       `json:"playback_position_seconds"`
	LastUpdatedAt           time.Time `json:"last_updated_at"`
	CreatedAt               time.Time `json:"created_at"`
}

// contentListResponse はコンテンツ一覧のレスポンス。
type contentListResponse struct {
	Contents   []contentResponse `json:"contents"`
	NextCursor string            `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

func toFeedResponse(feed *model.Feed) feedResponse {
	return feedResponse{
		ID:                feed.ID,
		Title:             feed.Title,
		SourceURL:         feed.SourceURL,
		SiteURL:           feed.SiteURL,
		IconURL:           feed.IconURL,
		Category:          feed.Category,
		Kind:              string(feed.Kind),
		UnreadCount:       feed.UnreadCount,
		FetchStatus:       string(feed.FetchStatus),
		ConsecutiveErrors: feed.ConsecutiveErrors,
		ErrorMessage:      feed.ErrorMessage,
		NextFetchAt:       feed.NextFetchAt,
		LastUpdatedAt:     feed.LastUpdatedAt,
		IsDeleted:         feed.IsDeleted,
		CreatedAt:         feed.CreatedAt,
	}
}

func toContentResponse(c *model.Content) contentResponse {
	images := c.ImageURLs
	if images == nil {
		images = []string{}
	}
	return contentResponse{
		ID:                      c.ID,
		FeedID:                  c.FeedID,
		Kind:                    string(c.Kind),
		Title:                   c.Title,
		Body:                    c.Body,
		SourceURL:               c.SourceURL,
		Author:                  c.Author,
		PublishedAt:             c.PublishedAt,
		Summary:                 c.Summary,
		AISummary:               c.AISummary,
		IsRead:                  c.IsRead,
		IsFavorite:              c.IsFavorite,
		IsDeleted:               c.IsDeleted,
		ImageURLs:               images,
		AudioURL:                c.AudioURL,
		DurationSeconds:         c.DurationSeconds,
		PlaybackPositionSeconds: c.PlaybackPositionSeconds,
		LastUpdatedAt:           c.LastUpdatedAt,
		CreatedAt:               c.CreatedAt,
	}
}

// writeJSON はstatusCodeとともにvをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// createdStatus は新規作成なら201、既存レコードなら200を返す。
func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// decodeJSON はリクエストボディをvにデコードする。
// 空ボディ、不正なJSON、未知のフィールドはINVALID_REQUESTになる。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("リクエストボディが空です")
		}
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました: " + err.Error())
	}
	return nil
}
