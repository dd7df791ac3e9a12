// Package repository はデータ永続化のインターフェースとSQL実装を提供する。
// SQL実装はSQLiteとPostgreSQLの両方で動作する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
)

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	// 削除済みのフィードも返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindBySourceURL はソースURLでフィードを検索する。見つからない場合はnilを返す。
	FindBySourceURL(ctx context.Context, sourceURL string) (*model.Feed, error)

	// FindOrCreate はsource_urlで既存フィードを探し、なければfeedを保存する。
	// 同一URLに対する並行呼び出しでもレコードは最大1件となる。
	// 戻り値のboolは新規作成した場合にtrueとなる。
	FindOrCreate(ctx context.Context, feed *model.Feed) (*model.Feed, bool, error)

	// List はフィード一覧をタイトル順で返す。includeDeletedがfalseの場合は削除済みを除外する。
	List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error)

	// MarkDeleted はフィードを論理削除する。所有するコンテンツには波及しない。
	// フィードが存在しない場合はnilを返す。
	MarkDeleted(ctx context.Context, id string) (*model.Feed, error)

	// UpdateMetadata はフェッチ結果から得たタイトル、サイトURL、アイコンURL、最終更新日時を更新する。
	UpdateMetadata(ctx context.Context, feed *model.Feed) error

	// ListDueForFetch はnext_fetch_at <= now かつ fetch_status = 'active' かつ未削除のフィードを取得する。
	ListDueForFetch(ctx context.Context, now time.Time) ([]*model.Feed, error)

	// UpdateFetchState はフィードのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、next_fetch_at、etag、last_modifiedを更新する。
	UpdateFetchState(ctx context.Context, feed *model.Feed) error

	// RecountUnread は未読かつ未削除のコンテンツ数を集計してunread_countを上書きする。
	// フィードが存在しない場合はnilを返す。
	RecountUnread(ctx context.Context, id string) (*model.Feed, error)

	// PurgeDeleted は論理削除済みでコンテンツを持たず、updated_atがbeforeより古いフィードを物理削除する。
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// ContentRepository はコンテンツ（記事・エピソード）の永続化インターフェース。
// 既読・お気に入り・論理削除・要約の更新はこのインターフェースのみを経由する。
type ContentRepository interface {
	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	// 削除済みのコンテンツも返す。
	FindByID(ctx context.Context, id string) (*model.Content, error)

	// FindBySourceURL は種別とソースURLでコンテンツを検索する。見つからない場合はnilを返す。
	FindBySourceURL(ctx context.Context, kind model.Kind, sourceURL string) (*model.Content, error)

	// FindOrCreate は(kind, source_url)で既存コンテンツを探し、なければcontentを保存する。
	// 未読のコンテンツをフィード配下に新規作成した場合は同一トランザクションでunread_countを1増やす。
	// 戻り値のboolは新規作成した場合にtrueとなる。
	FindOrCreate(ctx context.Context, content *model.Content) (*model.Content, bool, error)

	// Refresh はフェッチで得た本文などを既存コンテンツに上書きする。
	// 要約は未設定の場合のみ書き込む。論理削除済みのコンテンツは変更しない。
	// 既読・お気に入り・削除・AI要約・再生位置は変更しない。
	Refresh(ctx context.Context, content *model.Content) error

	// ListByFeed はフィードのコンテンツ一覧をpublished_at降順、id降順で返す。
	// 削除済みは常に除外する。cursorがnilの場合は先頭から取得する。
	ListByFeed(ctx context.Context, feedID string, filter model.ContentFilter, cursor *Cursor, limit int) ([]*model.Content, error)

	// MarkRead は既読にする。未読かつ未削除からの遷移時のみフィードのunread_countを1減らす（0未満にはならない）。
	// コンテンツが存在しない場合はnilを返す。
	MarkRead(ctx context.Context, id string) (*model.Content, error)

	// ToggleFavorite はお気に入りフラグを反転する。コンテンツが存在しない場合はnilを返す。
	ToggleFavorite(ctx context.Context, id string) (*model.Content, error)

	// MarkDeleted は論理削除する。未読だった場合はフィードのunread_countを1減らす。
	// コンテンツが存在しない場合はnilを返す。
	MarkDeleted(ctx context.Context, id string) (*model.Content, error)

	// UpdateSummary は要約を上書きしlast_updated_atを更新する。コンテンツが存在しない場合はnilを返す。
	UpdateSummary(ctx context.Context, id, summary string, now time.Time) (*model.Content, error)

	// UpdateAISummary はAI要約を上書きしlast_updated_atを更新する。コンテンツが存在しない場合はnilを返す。
	UpdateAISummary(ctx context.Context, id, aiSummary string, now time.Time) (*model.Content, error)

	// UpdatePlaybackPosition は再生位置（秒）を更新する。コンテンツが存在しない場合はnilを返す。
	UpdatePlaybackPosition(ctx context.Context, id string, seconds int) (*model.Content, error)

	// PurgeDeleted は論理削除済みでlast_updated_atがbeforeより古いコンテンツを物理削除する。
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// Cursor はコンテンツ一覧のキーセットページネーション位置。
type Cursor struct {
	PublishedAt time.Time
	ID          string
}
