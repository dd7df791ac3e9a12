package database

import (
	"path/filepath"
	"testing"
	"time"
)

func testSQLiteURL(t *testing.T) string {
	t.Helper()
	return "sqlite://" + filepath.Join(t.TempDir(), "migrate.db")
}

func TestRunMigrations_CreatesTables(t *testing.T) {
	dbURL := testSQLiteURL(t)

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"feeds", "contents", "schema_migrations"} {
		t.Run("テーブル存在確認_"+table, func(t *testing.T) {
			var count int
			err := db.QueryRow(
				`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = $1`, table,
			).Scan(&count)
			if err != nil {
				t.Fatalf("テーブル存在確認クエリに失敗: %v", err)
			}
			if count != 1 {
				t.Errorf("テーブル %q が存在しません", table)
			}
		})
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	dbURL := testSQLiteURL(t)

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("1回目のマイグレーション実行に失敗: %v", err)
	}
	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("2回目のマイグレーション実行に失敗（冪等性の問題）: %v", err)
	}

	version, dirty, err := SchemaVersion(dbURL)
	if err != nil {
		t.Fatalf("SchemaVersion returned unexpected error: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("version = %d, dirty = %v, want 3, false", version, dirty)
	}
}

// TestMigration_SoftDeleteDefaultsFalseForExistingRows は
// is_deleted追加前に存在したレコードが未削除として扱われることを検証する。
func TestMigration_SoftDeleteDefaultsFalseForExistingRows(t *testing.T) {
	dbURL := testSQLiteURL(t)

	m, err := NewMigrator(dbURL)
	if err != nil {
		t.Fatalf("Migrator生成に失敗: %v", err)
	}
	if err := m.Migrate(1); err != nil {
		t.Fatalf("バージョン1へのマイグレーションに失敗: %v", err)
	}
	m.Close()

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	_, err = db.Exec(
		`INSERT INTO feeds (id, title, source_url, next_fetch_at, last_updated_at, created_at, updated_at)
		 VALUES ('feed-1', 'old feed', 'https://example.com/feed', $1, $1, $1, $1)`,
		now,
	)
	if err != nil {
		t.Fatalf("旧スキーマへのフィード投入に失敗: %v", err)
	}
	_, err = db.Exec(
		`INSERT INTO contents (id, feed_id, source_url, published_at, last_updated_at, created_at)
		 VALUES ('content-1', 'feed-1', 'https://example.com/a1', $1, $1, $1)`,
		now,
	)
	if err != nil {
		t.Fatalf("旧スキーマへのコンテンツ投入に失敗: %v", err)
	}
	db.Close()

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("最新へのマイグレーションに失敗: %v", err)
	}

	db, err = Open(dbURL)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	var feedDeleted, contentDeleted bool
	if err := db.QueryRow(`SELECT is_deleted FROM feeds WHERE id = 'feed-1'`).Scan(&feedDeleted); err != nil {
		t.Fatalf("feeds.is_deletedの取得に失敗: %v", err)
	}
	if err := db.QueryRow(`SELECT is_deleted FROM contents WHERE id = 'content-1'`).Scan(&contentDeleted); err != nil {
		t.Fatalf("contents.is_deletedの取得に失敗: %v", err)
	}
	if feedDeleted || contentDeleted {
		t.Errorf("is_deleted = (%v, %v), want (false, false)", feedDeleted, contentDeleted)
	}
}

func TestMigrations_UpAndDown(t *testing.T) {
	dbURL := testSQLiteURL(t)

	m, err := NewMigrator(dbURL)
	if err != nil {
		t.Fatalf("Migrator生成に失敗: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		t.Fatalf("Up マイグレーション実行に失敗: %v", err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('feeds', 'contents')`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("テーブルカウント取得に失敗: %v", err)
	}
	if count != 0 {
		t.Errorf("Down後のテーブル数が不正: got %d, want 0", count)
	}
}

func TestNewMigrator_UnsupportedURL(t *testing.T) {
	if _, err := NewMigrator("mysql://localhost/feedshelf"); err == nil {
		t.Fatal("expected error for unsupported URL")
	}
}
