package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// queryer は*sql.DBと*sql.Txの共通部分を抽象化する。
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分を抽象化する。
type rowScanner interface {
	Scan(dest ...any) error
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// timestamp は保存用にUTCかつ秒精度へ丸める。
// SQLiteではTIMESTAMPが文字列として比較されるため、精度を揃えて順序を保つ。
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// encodeImageURLs は画像URLのリストをJSON配列文字列に変換する。
func encodeImageURLs(urls []string) (string, error) {
	if len(urls) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeImageURLs はJSON配列文字列を画像URLのリストに変換する。
func decodeImageURLs(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(s), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}
