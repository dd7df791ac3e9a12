package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect string

const (
	// DialectSQLite はローカルのSQLiteファイル。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はPostgreSQL。
	DialectPostgres Dialect = "postgres"
)

const sqliteScheme = "sqlite://"

// ParseURL はデータベースURLから方言とドライバに渡すDSNを取り出す。
// sqlite:///path/to/feedshelf.db の場合はファイルパスを、
// postgres:// または postgresql:// の場合はURLをそのまま返す。
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, sqliteScheme):
		path := strings.TrimPrefix(databaseURL, sqliteScheme)
		if path == "" {
			return "", "", fmt.Errorf("sqlite database path is empty: %q", databaseURL)
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme: %q", databaseURL)
	}
}

// Open はデータベース接続を開く。
// databaseURLは sqlite:///path/to/file.db または PostgreSQLの接続URLを指定する。
// SQLiteの場合は書き込みを単一接続に直列化するため接続数を1に制限し、
// WALモードとbusy_timeoutを設定する。
// PostgreSQLの場合、sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to configure sqlite (%s): %w", p, err)
			}
		}
	}

	return db, nil
}
