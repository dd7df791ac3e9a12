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

const contentColumns = `id, feed_id, kind, title, body, source_url, guid, author, published_at,
	summary, ai_summary, is_read, is_favorite, is_deleted, image_urls,
	audio_url, duration_seconds, playback_position_seconds, last_updated_at, created_at`

// SQLContentRepo はSQLデータベースを使用したコンテンツリポジトリ。
// 未読数の増減はコンテンツの更新と同一トランザクションで行う。
type SQLContentRepo struct {
	db     *sql.DB
	writer *database.Writer
}

// NewSQLContentRepo はSQLContentRepoを生成する。
func NewSQLContentRepo(writer *database.Writer) *SQLContentRepo {
	return &SQLContentRepo{db: writer.DB(), writer: writer}
}

func scanContent(s rowScanner) (*model.Content, error) {
	c := &model.Content{}
	var feedID, guid, author, summary, aiSummary, audioURL sql.NullString
	var kind, imageURLs string

	err := s.Scan(
		&c.ID, &feedID, &kind, &c.Title, &c.Body, &c.SourceURL, &guid, &author, &c.PublishedAt,
		&summary, &aiSummary, &c.IsRead, &c.IsFavorite, &c.IsDeleted, &imageURLs,
		&audioURL, &c.DurationSeconds, &c.PlaybackPositionSeconds, &c.LastUpdatedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = model.Kind(kind)
	c.FeedID = nullStringValue(feedID)
	c.GUID = nullStringValue(guid)
	c.Author = nullStringValue(author)
	c.Summary = nullStringValue(summary)
	c.AISummary = nullStringValue(aiSummary)
	c.AudioURL = nullStringValue(audioURL)

	c.ImageURLs, err = decodeImageURLs(imageURLs)
	if err != nil {
		return nil, fmt.Errorf("image_urlsの解析に失敗しました: %w", err)
	}

	return c, nil
}

func findContent(ctx context.Context, q queryer, where string, args ...any) (*model.Content, error) {
	c, err := scanContent(q.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE `+where, args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
func (r *SQLContentRepo) FindByID(ctx context.Context, id string) (*model.Content, error) {
	c, err := findContent(ctx, r.db, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindBySourceURL は種別とソースURLでコンテンツを検索する。見つからない場合はnilを返す。
func (r *SQLContentRepo) FindBySourceURL(ctx context.Context, kind model.Kind, sourceURL string) (*model.Content, error) {
	c, err := findContent(ctx, r.db, `kind = $1 AND source_url = $2`, string(kind), sourceURL)
	if err != nil {
		return nil, fmt.Errorf("ソースURLによるコンテンツの検索に失敗しました: %w", err)
	}
	return c, nil
}

// FindOrCreate は(kind, source_url)で既存コンテンツを探し、なければcontentを保存する。
func (r *SQLContentRepo) FindOrCreate(ctx context.Context, content *model.Content) (*model.Content, bool, error) {
	imageURLs, err := encodeImageURLs(content.ImageURLs)
	if err != nil {
		return nil, false, fmt.Errorf("image_urlsの変換に失敗しました: %w", err)
	}

	var stored *model.Content
	var created bool

	err = r.writer.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO contents (id, feed_id, kind, title, body, source_url, guid, author, published_at,
			                       summary, ai_summary, is_read, is_favorite, is_deleted, image_urls,
			                       audio_url, duration_seconds, playback_position_seconds, last_updated_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			 ON CONFLICT (kind, source_url) DO NOTHING`,
			content.ID, nullString(content.FeedID), string(content.Kind), content.Title, content.Body,
			content.SourceURL, nullString(content.GUID), nullString(content.Author), timestamp(content.PublishedAt),
			nullString(content.Summary), nullString(content.AISummary),
			content.IsRead, content.IsFavorite, content.IsDeleted, imageURLs,
			nullString(content.AudioURL), content.DurationSeconds, content.PlaybackPositionSeconds,
			timestamp(content.LastUpdatedAt), timestamp(content.CreatedAt),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = affected == 1

		stored, err = findContent(ctx, tx, `kind = $1 AND source_url = $2`, string(content.Kind), content.SourceURL)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("(%s, %q) is missing after insert", content.Kind, content.SourceURL)
		}

		if created && stored.FeedID != "" && stored.IsUnread() {
			return incrementUnread(ctx, tx, stored.FeedID, stored.LastUpdatedAt)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("コンテンツのfind-or-createに失敗しました: %w", err)
	}

	return stored, created, nil
}

// incrementUnread はフィードの未読数を1増やし、最終更新日時を進める。
func incrementUnread(ctx context.Context, tx *sql.Tx, feedID string, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE feeds SET unread_count = unread_count + 1, last_updated_at = $2 WHERE id = $1`,
		feedID, timestamp(updatedAt),
	)
	return err
}

// decrementUnread はフィードの未読数を1減らす。0未満にはしない。
func decrementUnread(ctx context.Context, tx *sql.Tx, feedID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE feeds SET unread_count = CASE WHEN unread_count > 0 THEN unread_count - 1 ELSE 0 END
		 WHERE id = $1`,
		feedID,
	)
	return err
}

// Refresh はフェッチで得た本文などを既存コンテンツに上書きする。
func (r *SQLContentRepo) Refresh(ctx context.Context, content *model.Content) error {
	imageURLs, err := encodeImageURLs(content.ImageURLs)
	if err != nil {
		return fmt.Errorf("image_urlsの変換に失敗しました: %w", err)
	}

	err = r.writer.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE contents SET
			    title = $2, body = $3, guid = $4, author = $5, published_at = $6,
			    summary = CASE WHEN summary IS NULL OR summary = '' THEN $7 ELSE summary END,
			    image_urls = $8, audio_url = $9, duration_seconds = $10,
			    last_updated_at = $11
			 WHERE id = $1 AND is_deleted = FALSE`,
			content.ID, content.Title, content.Body, nullString(content.GUID), nullString(content.Author),
			timestamp(content.PublishedAt), nullString(content.Summary), imageURLs,
			nullString(content.AudioURL), content.DurationSeconds, timestamp(content.LastUpdatedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("コンテンツの上書きに失敗しました: %w", err)
	}
	return nil
}

// ListByFeed はフィードのコンテンツ一覧をpublished_at降順、id降順で返す。
func (r *SQLContentRepo) ListByFeed(
	ctx context.Context,
	feedID string,
	filter model.ContentFilter,
	cursor *Cursor,
	limit int,
) ([]*model.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE feed_id = $1 AND is_deleted = FALSE`
	args := []any{feedID}

	switch filter {
	case model.ContentFilterUnread:
		query += ` AND is_read = FALSE`
	case model.ContentFilterFavorite:
		query += ` AND is_favorite = TRUE`
	}

	if cursor != nil {
		query += ` AND (published_at < $2 OR (published_at = $2 AND id < $3))`
		args = append(args, timestamp(cursor.PublishedAt), cursor.ID)
	}

	query += fmt.Sprintf(` ORDER BY published_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contents []*model.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("コンテンツ行の読み取りに失敗しました: %w", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コンテンツ一覧の走査に失敗しました: %w", err)
	}
	return contents, nil
}

// mutate はトランザクション内で現在の行を読み、applyを実行してから読み直す。
// 行が存在しない場合はapplyを呼ばずにnilを返す。
func (r *SQLContentRepo) mutate(
	ctx context.Context,
	id string,
	apply func(tx *sql.Tx, current *model.Content) error,
) (*model.Content, error) {
	var updated *model.Content

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		current, err := findContent(ctx, tx, `id = $1`, id)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		if err := apply(tx, current); err != nil {
			return err
		}
		updated, err = findContent(ctx, tx, `id = $1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkRead は既読にする。未読かつ未削除からの遷移時のみ未読数を減らす。
func (r *SQLContentRepo) MarkRead(ctx context.Context, id string) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, current *model.Content) error {
		if current.IsRead {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE contents SET is_read = TRUE WHERE id = $1`, id); err != nil {
			return err
		}
		if current.IsUnread() && current.FeedID != "" {
			return decrementUnread(ctx, tx, current.FeedID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("既読への更新に失敗しました: %w", err)
	}
	return c, nil
}

// ToggleFavorite はお気に入りフラグを反転する。
func (r *SQLContentRepo) ToggleFavorite(ctx context.Context, id string) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, _ *model.Content) error {
		_, err := tx.ExecContext(ctx, `UPDATE contents SET is_favorite = NOT is_favorite WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("お気に入りの切り替えに失敗しました: %w", err)
	}
	return c, nil
}

// MarkDeleted は論理削除する。未読だった場合は未読数を減らす。
func (r *SQLContentRepo) MarkDeleted(ctx context.Context, id string) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, current *model.Content) error {
		if current.IsDeleted {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE contents SET is_deleted = TRUE, last_updated_at = $2 WHERE id = $1`,
			id, timestamp(time.Now()),
		); err != nil {
			return err
		}
		if current.IsUnread() && current.FeedID != "" {
			return decrementUnread(ctx, tx, current.FeedID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("コンテンツの論理削除に失敗しました: %w", err)
	}
	return c, nil
}

// UpdateSummary は要約を上書きしlast_updated_atを更新する。
func (r *SQLContentRepo) UpdateSummary(ctx context.Context, id, summary string, now time.Time) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, _ *model.Content) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE contents SET summary = $2, last_updated_at = $3 WHERE id = $1`,
			id, nullString(summary), timestamp(now),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("要約の更新に失敗しました: %w", err)
	}
	return c, nil
}

// UpdateAISummary はAI要約を上書きしlast_updated_atを更新する。
func (r *SQLContentRepo) UpdateAISummary(ctx context.Context, id, aiSummary string, now time.Time) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, _ *model.Content) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE contents SET ai_summary = $2, last_updated_at = $3 WHERE id = $1`,
			id, nullString(aiSummary), timestamp(now),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("AI要約の更新に失敗しました: %w", err)
	}
	return c, nil
}

// UpdatePlaybackPosition は再生位置（秒）を更新する。
func (r *SQLContentRepo) UpdatePlaybackPosition(ctx context.Context, id string, seconds int) (*model.Content, error) {
	c, err := r.mutate(ctx, id, func(tx *sql.Tx, _ *model.Content) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE contents SET playback_position_seconds = $2 WHERE id = $1`,
			id, seconds,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("再生位置の更新に失敗しました: %w", err)
	}
	return c, nil
}

// PurgeDeleted は論理削除済みでlast_updated_atがbeforeより古いコンテンツを物理削除する。
func (r *SQLContentRepo) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64

	err := r.writer.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM contents WHERE is_deleted = TRUE AND last_updated_at < $1`,
			timestamp(before),
		)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("削除済みコンテンツの物理削除に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ContentRepository = (*SQLContentRepo)(nil)
