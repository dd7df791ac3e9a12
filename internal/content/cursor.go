package content

import (
	"strings"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
)

// cursorSeparator はカーソル文字列内の日時とIDの区切り。
const cursorSeparator = "|"

// EncodeCursor は一覧の次ページ位置を "RFC3339|id" 形式の文字列にする。
func EncodeCursor(publishedAt time.Time, id string) string {
	return publishedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + id
}

// DecodeCursor はEncodeCursorの出力を解析する。
func DecodeCursor(s string) (*repository.Cursor, error) {
	ts, id, ok := strings.Cut(s, cursorSeparator)
	if !ok || id == "" {
		return nil, model.NewInvalidRequestError("無効なカーソル値です: " + s)
	}

	publishedAt, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, model.NewInvalidRequestError("無効なカーソル値です: " + s)
	}
	return &repository.Cursor{PublishedAt: publishedAt, ID: id}, nil
}
