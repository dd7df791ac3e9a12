package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setTestEnv は一時SQLiteを使うよう環境変数を設定し、DB URLを返す。
func setTestEnv(t *testing.T) string {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "app.db")
	t.Setenv("DATABASE_URL", url)
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("FEEDSHELF_CONFIG", "")
	return url
}

// restoreDefaultLogger はテスト終了時にslogのデフォルトロガーを戻す。
func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	restoreDefaultLogger(t)
	url := setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.DatabaseURL != url {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, url)
	}

	// slogのグローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithInvalidConfig_ReturnsError(t *testing.T) {
	restoreDefaultLogger(t)
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "chatty")

	var buf bytes.Buffer
	cfg, err := Init(&buf, "")
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_Help(t *testing.T) {
	var buf bytes.Buffer
	if err := Run(&buf, []string{"--help"}); err != nil {
		t.Fatalf("Run(--help) returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "import-opml") {
		t.Errorf("help output should list subcommands, got %q", buf.String())
	}
}

func TestRun_Migrate_SQLite(t *testing.T) {
	restoreDefaultLogger(t)
	url := setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate) returned error: %v", err)
	}

	path := strings.TrimPrefix(url, "sqlite://")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file should exist: %v", err)
	}
	if !strings.Contains(buf.String(), "database migrations completed successfully") {
		t.Errorf("log should report completion, got %s", buf.String())
	}
}

func TestRun_ImportThenExportOPML(t *testing.T) {
	restoreDefaultLogger(t)
	setTestEnv(t)

	opmlPath := filepath.Join(t.TempDir(), "subs.opml")
	doc := `<?xml version="1.0"?>
<opml version="2.0">
  <body>
    <outline text="News">
      <outline type="rss" text="Example" xmlUrl="https://example.com/feed.xml"/>
    </outline>
  </body>
</opml>`
	if err := os.WriteFile(opmlPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write opml: %v", err)
	}

	var logs bytes.Buffer
	if err := Run(&logs, []string{"import-opml", opmlPath}); err != nil {
		t.Fatalf("Run(import-opml) returned error: %v", err)
	}

	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })

	if err := Run(&logs, []string{"export-opml"}); err != nil {
		t.Fatalf("Run(export-opml) returned error: %v", err)
	}
	if !strings.Contains(out.String(), "https://example.com/feed.xml") || !strings.Contains(out.String(), `text="News"`) {
		t.Errorf("export = %s", out.String())
	}

	outPath := filepath.Join(t.TempDir(), "export.opml")
	if err := Run(&logs, []string{"export-opml", "--output", outPath}); err != nil {
		t.Fatalf("Run(export-opml -o) returned error: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("exported file should exist: %v", err)
	}
	if !strings.Contains(string(data), "https://example.com/feed.xml") {
		t.Errorf("exported file = %s", data)
	}
}

func TestRun_ImportOPML_MissingFile(t *testing.T) {
	restoreDefaultLogger(t)
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"import-opml", filepath.Join(t.TempDir(), "missing.opml")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, port, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to split host port: %v", err)
	}

	var buf bytes.Buffer
	if err := Run(&buf, []string{"healthcheck", "--port", port}); err != nil {
		t.Fatalf("Run(healthcheck) returned error: %v", err)
	}

	healthy = false
	if err := Run(&buf, []string{"healthcheck", "--port", port}); err == nil {
		t.Fatal("expected error for unhealthy server")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/feedshelf?sslmode=disable", "postgres://user:***@db:5432/feedshelf?sslmode=disable"},
		{"sqlite:///var/lib/feedshelf/feedshelf.db", "sqlite:///var/lib/feedshelf/feedshelf.db"},
		{"postgres://db:5432/feedshelf", "postgres://db:5432/feedshelf"},
	}

	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
