// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedshelf/internal/config"
	"github.com/hitoshi/feedshelf/internal/content"
	"github.com/hitoshi/feedshelf/internal/database"
	"github.com/hitoshi/feedshelf/internal/feed"
	"github.com/hitoshi/feedshelf/internal/handler"
	"github.com/hitoshi/feedshelf/internal/logger"
	"github.com/hitoshi/feedshelf/internal/metrics"
	"github.com/hitoshi/feedshelf/internal/middleware"
	"github.com/hitoshi/feedshelf/internal/opml"
	"github.com/hitoshi/feedshelf/internal/repository"
	"github.com/hitoshi/feedshelf/internal/security"
	"github.com/hitoshi/feedshelf/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/feedshelf/internal/worker/fetch"
)

// stdout はexport-opmlの既定の出力先。
var stdout io.Writer = os.Stdout

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, configPath string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, opts, err := ParseCommand(args)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(w, flagErr.Message)
			return nil
		}
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(opts.Healthcheck.Port)
	}

	cfg, err := Init(w, opts.Config)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImportOPML:
		return runImportOPML(ctx, cfg, opts.ImportOPML.Args.File)
	case CommandExportOPML:
		return runExportOPML(ctx, cfg, opts.ExportOPML.Output)
	default:
		return runServe(ctx, cfg)
	}
}

// store はDB接続とリポジトリをまとめたもの。
type store struct {
	db          *sql.DB
	feedRepo    *repository.SQLFeedRepo
	contentRepo *repository.SQLContentRepo
}

// openStore はDB接続を開き、リポジトリを初期化する。
// SQLiteの場合は未適用のマイグレーションを先に適用する。
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	dialect, _, err := database.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == database.DialectSQLite {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established", slog.String("dialect", string(dialect)))

	w := database.NewWriter(db)
	return &store{
		db:          db,
		feedRepo:    repository.NewSQLFeedRepo(w),
		contentRepo: repository.NewSQLContentRepo(w),
	}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// newRegistry はGo・プロセスのコレクタを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続とリポジトリ
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. セキュリティサービスとドメインサービス
	ssrfGuard := security.NewSSRFGuard(cfg.FetchUserAgent)
	sanitizer := security.NewContentSanitizer()

	feedService := feed.NewService(st.feedRepo, feed.NewDetector(ssrfGuard))
	contentService := content.NewService(st.contentRepo, st.feedRepo, sanitizer)
	stateService := content.NewStateService(st.contentRepo, collector)
	opmlService := opml.NewService(feedService)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute, cfg.RateLimitRegisterPerMinute),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		HTTPRecorder:      collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     st.db,
		MetricsHandler:    metrics.Handler(reg),
		FeedService:       feedService,
		ContentService:    contentService,
		StateService:      stateService,
		OPMLService:       opmlService,
	})

	// 5. HTTPサーバーの起動
	return serveHTTP(ctx, newServer(cfg.ServerPort, router), "API server")
}

// runWorker はワーカーモードで起動する。
// フェッチスケジューラとコンパクションのcronを起動し、/health と /metrics を公開する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続とリポジトリ
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard(cfg.FetchUserAgent)
	sanitizer := security.NewContentSanitizer()

	// 3. フェッチャーとスケジューラの初期化
	contentService := content.NewService(st.contentRepo, st.feedRepo, sanitizer)
	fetcher := fetchpkg.NewFetcher(
		st.feedRepo, contentService, ssrfGuard, feed.NewIconResolver(ssrfGuard), collector,
		slog.Default(), fetchpkg.Options{
			Timeout:         cfg.FetchTimeout,
			MaxBodySize:     cfg.FetchMaxSize,
			RefreshInterval: cfg.FetchRefreshInterval,
		},
	)
	scheduler := fetchpkg.NewScheduler(st.feedRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent)

	// 4. コンパクションジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(st.contentRepo, st.feedRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.CompactionRetentionDays
	compaction, err := cleanup.NewScheduler(cleanupJob, cfg.CompactionSchedule)
	if err != nil {
		return err
	}
	compaction.Start()
	defer compaction.Stop()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.String("compaction_schedule", cfg.CompactionSchedule),
		slog.Time("next_compaction", compaction.NextRun()),
	)

	// 5. ヘルスチェックとメトリクスをバックグラウンドで公開
	// サーバーが起動できなければスケジューラも止める
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("GET /health", handler.NewHealthHandler(st.db))
	mux.Handle("GET /metrics", metrics.Handler(reg))
	errCh := make(chan error, 1)
	go func() {
		err := serveHTTP(ctx, newServer(cfg.ServerPort, mux), "worker metrics server")
		if err != nil {
			cancel()
		}
		errCh <- err
	}()

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchInterval)

	if err := <-errCh; err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runImportOPML はOPMLファイルのフィードをfind-or-createする。
func runImportOPML(ctx context.Context, cfg *config.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open opml file: %w", err)
	}
	defer f.Close()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := opml.NewService(feed.NewService(st.feedRepo, nil)).Import(ctx, f)
	if err != nil {
		return fmt.Errorf("opml import failed: %w", err)
	}
	for _, failed := range result.Failed {
		slog.Warn("opml entry skipped",
			slog.String("url", failed.URL),
			slog.String("error", failed.Message),
		)
	}
	return nil
}

// runExportOPML は削除されていないフィードをOPMLとして書き出す。
// outputが空の場合は標準出力に書き出す。
func runExportOPML(ctx context.Context, cfg *config.Config, output string) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := opml.NewService(feed.NewService(st.feedRepo, nil)).Export(ctx)
	if err != nil {
		return fmt.Errorf("opml export failed: %w", err)
	}

	if output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write opml file: %w", err)
	}
	slog.Info("opml exported", slog.String("path", output), slog.Int("bytes", len(data)))
	return nil
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveHTTP はctxがキャンセルされるまでserverを動かし、その後グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}
	slog.Info(name + " stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
