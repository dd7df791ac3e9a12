// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: not_found, store, validation, feed, system
	Action   string // ユーザー向け対処方法

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// エラーカテゴリ
const (
	CategoryNotFound   = "not_found"
	CategoryStore      = "store"
	CategoryValidation = "validation"
	CategoryFeed       = "feed"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeFeedNotFound            = "FEED_NOT_FOUND"
	ErrCodeContentNotFound         = "CONTENT_NOT_FOUND"
	ErrCodeStoreUnavailable        = "STORE_UNAVAILABLE"
	ErrCodeInvalidURL              = "INVALID_URL"
	ErrCodeInvalidKind             = "INVALID_KIND"
	ErrCodeInvalidFilter           = "INVALID_FILTER"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeInvalidPlaybackPosition = "INVALID_PLAYBACK_POSITION"
	ErrCodeInvalidOPML             = "INVALID_OPML"
	ErrCodeFeedNotDetected         = "FEED_NOT_DETECTED"
	ErrCodeSSRFBlocked             = "SSRF_BLOCKED"
	ErrCodeFetchFailed             = "FETCH_FAILED"
	ErrCodeParseFailed             = "PARSE_FAILED"
)

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: CategoryNotFound,
		Action:   "フィードIDを確認してください。",
	}
}

// NewContentNotFoundError はコンテンツ未検出エラーを生成する。
func NewContentNotFoundError(contentID string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", contentID),
		Category: CategoryNotFound,
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewStoreUnavailableError はストアの読み書き失敗を表すエラーを生成する。
// 原因のエラーはUnwrapで取得できる。
func NewStoreUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアにアクセスできません。",
		Category: CategoryStore,
		Action:   "しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: CategoryValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewInvalidKindError は無効な種別エラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効な種別です: %s", kind),
		Category: CategoryValidation,
		Action:   "種別には article または podcast を指定してください。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", filter),
		Category: CategoryValidation,
		Action:   "フィルタには all、unread、favorite のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト内容の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: CategoryValidation,
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidPlaybackPositionError は再生位置が不正な場合のエラーを生成する。
func NewInvalidPlaybackPositionError(seconds int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlaybackPosition,
		Message:  fmt.Sprintf("無効な再生位置です: %d秒", seconds),
		Category: CategoryValidation,
		Action:   "再生位置には0以上の秒数を指定してください。",
	}
}

// NewInvalidOPMLError はOPMLの解析失敗エラーを生成する。
func NewInvalidOPMLError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOPML,
		Message:  "OPMLの解析に失敗しました。",
		Category: CategoryValidation,
		Action:   "OPML 1.0 または 2.0 形式のファイルを指定してください。",
		cause:    cause,
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: CategoryFeed,
		Action:   "RSS/AtomフィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: CategoryValidation,
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: CategoryFeed,
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: CategoryFeed,
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}

// IsNotFound はエラーがID未解決（NotFound）を表すかどうかを返す。
func IsNotFound(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

// IsStoreUnavailable はエラーがストア障害を表すかどうかを返す。
func IsStoreUnavailable(err error) bool {
	return hasCategory(err, CategoryStore)
}

// IsValidation はエラーが入力検証エラーを表すかどうかを返す。
func IsValidation(err error) bool {
	return hasCategory(err, CategoryValidation)
}

func hasCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}
