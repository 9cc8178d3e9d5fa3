// Package app はサブコマンドの解析とアプリケーションの起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tokengate/internal/chain"
	"github.com/hitoshi/tokengate/internal/config"
	"github.com/hitoshi/tokengate/internal/database"
	"github.com/hitoshi/tokengate/internal/discord"
	"github.com/hitoshi/tokengate/internal/handler"
	"github.com/hitoshi/tokengate/internal/logger"
	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/middleware"
	"github.com/hitoshi/tokengate/internal/repository"
	"github.com/hitoshi/tokengate/internal/social"
	"github.com/hitoshi/tokengate/internal/verify"
	"github.com/hitoshi/tokengate/internal/worker/cleanup"
	"github.com/hitoshi/tokengate/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// oauthAdapter はdiscord.OAuthProviderをverify.OAuthProviderに適合させる。
type oauthAdapter struct {
	provider *discord.OAuthProvider
}

// GetLoginURL はOAuth認可URLを生成する。
func (a *oauthAdapter) GetLoginURL(state string) string {
	return a.provider.GetLoginURL(state)
}

// ExchangeCode は認可コードを交換し、ユーザー情報をverifyの型に変換して返す。
func (a *oauthAdapter) ExchangeCode(ctx context.Context, code string) (*verify.OAuthUser, error) {
	info, err := a.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &verify.OAuthUser{
		AccountID:   info.AccountID,
		DisplayName: info.DisplayName,
	}, nil
}

var _ verify.OAuthProvider = (*oauthAdapter)(nil)

// buildVerifyPipeline はResolver・Aggregator・RoleManagerなど
// serveとworkerで共通のコラボレータ一式を構築する。
func buildVerifyPipeline(cfg *config.Config, rec metrics.Recorder) (*verify.Resolver, *verify.Aggregator, *discord.RoleManager, error) {
	log := slog.Default()
	httpClient := &http.Client{Timeout: cfg.CallTimeout}

	// ソーシャルグラフ照会。APIキー未設定の場合はウォレット単独検証
	var socialLookup verify.SocialLookup
	if cfg.NeynarAPIKey != "" {
		socialLookup = social.NewClient(httpClient, cfg.NeynarAPIKey, log)
	} else {
		slog.Info("NEYNAR_API_KEYが未設定のためソーシャル照会を無効化します")
	}

	chainClient, err := chain.Dial(cfg.EthRPCURL, cfg.ContractAddress, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	resolver := verify.NewResolver(socialLookup, rec, log)
	aggregator := verify.NewAggregator(chainClient, rec, log, 4, cfg.CallTimeout)

	roleManager := discord.NewRoleManager(discord.RoleManagerConfig{
		BotToken: cfg.DiscordBotToken,
		GuildID:  cfg.DiscordGuildID,
		RoleID:   cfg.DiscordRoleID,
	}, httpClient, log)

	return resolver, aggregator, roleManager, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	bindingRepo := repository.NewPostgresBindingRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 4. コラボレータの初期化
	resolver, aggregator, roleManager, err := buildVerifyPipeline(cfg, collector)
	if err != nil {
		return err
	}

	oauthProvider := discord.NewOAuthProvider(discord.OAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURL,
	}, &http.Client{Timeout: cfg.CallTimeout})

	// 5. 検証サービスの構築
	verifyService := verify.NewService(
		&oauthAdapter{provider: oauthProvider},
		roleManager,
		resolver,
		aggregator,
		bindingRepo,
		sessionRepo,
		collector,
		slog.Default(),
		verify.ServiceConfig{
			SessionTTL:  cfg.SessionTTL,
			CallTimeout: cfg.CallTimeout,
		},
	)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.VerifyRate = rate.Limit(float64(cfg.RateLimitVerify) / 60.0)
	rateLimiterCfg.VerifyBurst = cfg.RateLimitVerify

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		VerifyService:     verifyService,
		StatusService:     verifyService,
		DB:                db,
		Gatherer:          registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、再検証スケジューラとセッション掃除ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	bindingRepo := repository.NewPostgresBindingRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 4. コラボレータの初期化
	resolver, aggregator, roleManager, err := buildVerifyPipeline(cfg, collector)
	if err != nil {
		return err
	}

	// 5. 再検証スケジューラの構築
	reconciler := reconcile.NewReconciler(
		resolver, aggregator, bindingRepo, roleManager,
		collector, slog.Default(), cfg.CallTimeout,
	)
	scheduler := reconcile.NewScheduler(
		bindingRepo, reconciler, collector, slog.Default(),
		reconcile.SchedulerConfig{
			Interval:   cfg.ReconcileInterval,
			StaleAfter: cfg.ReconcileStaleAfter,
			BatchSize:  cfg.ReconcileBatchSize,
		},
	)

	// 6. セッション掃除ジョブの構築
	sweepJob := cleanup.NewSweepJob(sessionRepo, slog.Default())
	sweepJob.TTL = cfg.SessionTTL

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Duration("stale_after", cfg.ReconcileStaleAfter),
		slog.Int("batch_size", cfg.ReconcileBatchSize),
	)

	// メトリクスサーバーをバックグラウンドで起動
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.Handler(registry),
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// セッション掃除ジョブをバックグラウンドで起動
	go sweepJob.Start(ctx, cfg.SessionSweepInterval)

	// 再検証スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

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

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
