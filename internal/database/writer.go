package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Writer は書き込みトランザクションを単一ライターとして直列化する。
// 全ての更新系リポジトリ操作はWriter.Txを経由する。
// 読み取りはWriterを経由せず*sql.DBから直接行う。
type Writer struct {
	db *sql.DB
	mu sync.Mutex
}

// NewWriter はWriterを生成する。
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// DB は書き込み対象の*sql.DBを返す。
func (w *Writer) DB() *sql.DB {
	return w.db
}

// Tx はミューテックスを保持したままトランザクションを開始し、fnを実行する。
// fnがエラーを返した場合はロールバックし、そのエラーを返す。
func (w *Writer) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
