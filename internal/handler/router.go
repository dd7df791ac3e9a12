// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/feedshelf/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HTTPRecorder      middleware.HTTPRecorder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// フィード
	FeedService FeedServiceInterface

	// コンテンツ
	ContentService ContentServiceInterface
	StateService   StateServiceInterface

	// OPML
	OPMLService OPMLServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rl := deps.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	feedHandler := NewFeedHandler(deps.FeedService)
	contentHandler := NewContentHandler(deps.ContentService, deps.StateService)
	opmlHandler := NewOPMLHandler(deps.OPMLService)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(rl.GeneralMiddleware())

		// フィード管理
		r.Route("/api/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			// POST /api/feeds - フィード登録（登録専用レート制限を追加）
			r.With(rl.RegistrationMiddleware()).Post("/", feedHandler.CreateFeed)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", feedHandler.GetFeed)
				r.Delete("/", feedHandler.DeleteFeed)
				r.Post("/recount", feedHandler.RecountUnread)

				// GET /api/feeds/{id}/contents - フィードごとのコンテンツ一覧
				r.Get("/contents", contentHandler.ListContents)
			})
		})

		// コンテンツ管理
		r.Route("/api/contents", func(r chi.Router) {
			r.Post("/", contentHandler.CreateContent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", contentHandler.GetContent)
				r.Delete("/", contentHandler.DeleteContent)
				r.Put("/read", contentHandler.MarkRead)
				r.Post("/favorite", contentHandler.ToggleFavorite)
				r.Put("/summary", contentHandler.UpdateSummary)
				r.Put("/ai-summary", contentHandler.UpdateAISummary)
				r.Put("/playback", contentHandler.UpdatePlayback)
			})
		})

		// OPML
		r.Route("/api/opml", func(r chi.Router) {
			r.Get("/", opmlHandler.Export)
			r.With(rl.RegistrationMiddleware()).Post("/", opmlHandler.Import)
		})
	})

	return r
}
