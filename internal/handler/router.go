package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 検証フロー
	VerifyService VerifyServiceInterface

	// ステータスAPI
	StatusService StatusServiceInterface
	DB            Pinger

	// メトリクス。nilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// 検証開始（/auth/start）には専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	verifyHandler := NewVerifyHandler(deps.VerifyService)
	apiHandler := NewAPIHandler(deps.StatusService, deps.DB)

	// 検証フロー
	r.Route("/auth", func(r chi.Router) {
		// GET /auth/start - 検証開始（開始専用レート制限を追加）
		r.With(deps.RateLimiter.VerifyMiddleware()).Get("/start", verifyHandler.Start)
		r.Get("/callback", verifyHandler.Callback)
	})

	// bot連携用ステータスAPI
	r.Route("/api", func(r chi.Router) {
		r.Get("/verification/{discordID}", apiHandler.GetVerification)
		r.Get("/stats", apiHandler.GetStats)
	})

	r.Get("/health", apiHandler.Health)

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
