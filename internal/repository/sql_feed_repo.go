package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/feedshelf/internal/database"
	"github.com/hitoshi/feedshelf/internal/model"
)

const feedColumns = `id, title, source_url, site_url, icon_url, category, kind, unread_count,
	etag, last_modified, fetch_status, consecutive_errors, error_message,
	next_fetch_at, last_updated_at, is_deleted, created_at, updated_at`

// SQLFeedRepo はSQLデータベースを使用したフィードリポジトリ。
// 書き込みはdatabase.Writerで直列化される。
type SQLFeedRepo struct {
	db     *sql.DB
	writer *database.Writer
}

// NewSQLFeedRepo はSQLFeedRepoを生成する。
func NewSQLFeedRepo(writer *database.Writer) *SQLFeedRepo {
	return &SQLFeedRepo{db: writer.DB(), writer: writer}
}

// scanFeed は1行分のフィードを読み取る。
func scanFeed(s rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var siteURL, iconURL, etag, lastModified, errorMessage sql.NullString
	var kind, fetchStatus string

	err := s.Scan(
		&feed.ID, &feed.Title, &feed.SourceURL, &siteURL, &iconURL,
		&feed.Category, &kind, &feed.UnreadCount,
		&etag, &lastModified, &fetchStatus, &feed.ConsecutiveErrors, &errorMessage,
		&feed.NextFetchAt, &feed.LastUpdatedAt, &feed.IsDeleted, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.Kind = model.Kind(kind)
	feed.FetchStatus = model.FetchStatus(fetchStatus)
	feed.SiteURL = nullStringValue(siteURL)
	feed.IconURL = nullStringValue(iconURL)
	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.ErrorMessage = nullStringValue(errorMessage)

	return feed, nil
}

func findFeed(ctx context.Context, q queryer, where string, arg any) (*model.Feed, error) {
	feed, err := scanFeed(q.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE `+where, arg,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *SQLFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := findFeed(ctx, r.db, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindBySourceURL はソースURLでフィードを検索する。見つからない場合はnilを返す。
func (r *SQLFeedRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Feed, error) {
	feed, err := findFeed(ctx, r.db, `source_url = $1`, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("ソースURLによるフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// FindOrCreate はsource_urlで既存フィードを探し、なければfeedを保存する。
// INSERT ... ON CONFLICT DO NOTHINGでUNIQUE制約に委ね、その後同一トランザクションで読み直す。
func (r *SQLFeedRepo) FindOrCreate(ctx context.Context, feed *model.Feed) (*model.Feed, bool, error) {
	var stored *model.Feed
	var created bool

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO feeds (id, title, source_url, site_url, icon_url, category, kind, unread_count,
			                    etag, last_modified, fetch_status, consecutive_errors, error_message,
			                    next_fetch_at, last_updated_at, is_deleted, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			 ON CONFLICT (source_url) DO NOTHING`,
			feed.ID, feed.Title, feed.SourceURL, nullString(feed.SiteURL), nullString(feed.IconURL),
			feed.Category, string(feed.Kind), feed.UnreadCount,
			nullString(feed.ETag), nullString(feed.LastModified), string(feed.FetchStatus),
			feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
			timestamp(feed.NextFetchAt), timestamp(feed.LastUpdatedAt), feed.IsDeleted,
			timestamp(feed.CreatedAt), timestamp(feed.UpdatedAt),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = affected == 1

		stored, err = findFeed(ctx, tx, `source_url = $1`, feed.SourceURL)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("source_url %q is missing after insert", feed.SourceURL)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("フィードのfind-or-createに失敗しました: %w", err)
	}

	return stored, created, nil
}

// List はフィード一覧をタイトル順で返す。
func (r *SQLFeedRepo) List(ctx context.Context, includeDeleted bool) ([]*model.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	if !includeDeleted {
		query += ` WHERE is_deleted = FALSE`
	}
	query += ` ORDER BY title ASC, id ASC`

	feeds, err := r.queryFeeds(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	return feeds, nil
}

func (r *SQLFeedRepo) queryFeeds(ctx context.Context, query string, args ...any) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return feeds, nil
}

// MarkDeleted はフィードを論理削除する。フィードが存在しない場合はnilを返す。
func (r *SQLFeedRepo) MarkDeleted(ctx context.Context, id string) (*model.Feed, error) {
	var feed *model.Feed

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		now := timestamp(time.Now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE feeds SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`,
			id, now,
		); err != nil {
			return err
		}
		var err error
		feed, err = findFeed(ctx, tx, `id = $1`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("フィードの論理削除に失敗しました: %w", err)
	}
	return feed, nil
}

// UpdateMetadata はフェッチ結果から得たタイトル、サイトURL、アイコンURL、最終更新日時を更新する。
func (r *SQLFeedRepo) UpdateMetadata(ctx context.Context, feed *model.Feed) error {
	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE feeds SET
			    title = $2, site_url = $3, icon_url = $4,
			    last_updated_at = $5, updated_at = $6
			 WHERE id = $1`,
			feed.ID, feed.Title, nullString(feed.SiteURL), nullString(feed.IconURL),
			timestamp(feed.LastUpdatedAt), timestamp(time.Now()),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("フィード情報の更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象のフィードをnext_fetch_at昇順で取得する。
func (r *SQLFeedRepo) ListDueForFetch(ctx context.Context, now time.Time) ([]*model.Feed, error) {
	feeds, err := r.queryFeeds(ctx,
		`SELECT `+feedColumns+` FROM feeds
		 WHERE next_fetch_at <= $1
		   AND fetch_status = 'active'
		   AND is_deleted = FALSE
		 ORDER BY next_fetch_at ASC`,
		timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	return feeds, nil
}

// UpdateFetchState はフィードのフェッチ状態を更新する。
func (r *SQLFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE feeds SET
			    fetch_status = $2,
			    consecutive_errors = $3,
			    error_message = $4,
			    next_fetch_at = $5,
			    etag = $6,
			    last_modified = $7,
			    updated_at = $8
			 WHERE id = $1`,
			feed.ID,
			string(feed.FetchStatus),
			feed.ConsecutiveErrors,
			nullString(feed.ErrorMessage),
			timestamp(feed.NextFetchAt),
			nullString(feed.ETag),
			nullString(feed.LastModified),
			timestamp(time.Now()),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// RecountUnread は未読かつ未削除のコンテンツ数を集計してunread_countを上書きする。
func (r *SQLFeedRepo) RecountUnread(ctx context.Context, id string) (*model.Feed, error) {
	var feed *model.Feed

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE feeds SET unread_count = (
			     SELECT count(*) FROM contents
			     WHERE contents.feed_id = feeds.id
			       AND contents.is_read = FALSE
			       AND contents.is_deleted = FALSE
			 )
			 WHERE id = $1`,
			id,
		); err != nil {
			return err
		}
		var err error
		feed, err = findFeed(ctx, tx, `id = $1`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("未読数の再集計に失敗しました: %w", err)
	}
	return feed, nil
}

// PurgeDeleted は論理削除済みでコンテンツを持たないフィードを物理削除する。
func (r *SQLFeedRepo) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM feeds
			 WHERE is_deleted = TRUE
			   AND updated_at < $1
			   AND NOT EXISTS (SELECT 1 FROM contents WHERE contents.feed_id = feeds.id)`,
			timestamp(before),
		)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("削除済みフィードの物理削除に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ FeedRepository = (*SQLFeedRepo)(nil)
