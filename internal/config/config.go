// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Discord OAuth / Bot
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURL  string
	DiscordBotToken     string
	DiscordGuildID      string
	DiscordRoleID       string

	// Chain
	EthRPCURL       string
	ContractAddress string

	// Farcaster (Neynar)。空の場合はソーシャル連携を無効化する。
	NeynarAPIKey string

	// 外部コラボレータ呼び出しの個別タイムアウト
	CallTimeout time.Duration

	// Reconcile
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileBatchSize  int

	// PendingSession
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitVerify  int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（無ければ無視）。
// 必須環境変数が未設定の場合はすべて列挙してエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	required := []struct {
		name string
		dst  *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"DISCORD_CLIENT_ID", &cfg.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", &cfg.DiscordClientSecret},
		{"DISCORD_REDIRECT_URL", &cfg.DiscordRedirectURL},
		{"DISCORD_BOT_TOKEN", &cfg.DiscordBotToken},
		{"DISCORD_GUILD_ID", &cfg.DiscordGuildID},
		{"DISCORD_ROLE_ID", &cfg.DiscordRoleID},
		{"ETH_RPC_URL", &cfg.EthRPCURL},
		{"NFT_CONTRACT_ADDRESS", &cfg.ContractAddress},
		{"BASE_URL", &cfg.BaseURL},
	}

	for _, r := range required {
		*r.dst = os.Getenv(r.name)
		if *r.dst == "" {
			missing = append(missing, r.name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// コントラクトアドレスは照合の揺れを防ぐため小文字に正規化する
	cfg.ContractAddress = strings.ToLower(cfg.ContractAddress)

	// Optional fields with defaults
	cfg.NeynarAPIKey = getEnvString("NEYNAR_API_KEY", "")
	cfg.CallTimeout = getEnvDuration("CALL_TIMEOUT", 10*time.Second)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 6*time.Hour)
	cfg.ReconcileStaleAfter = getEnvDuration("RECONCILE_STALE_AFTER", 24*time.Hour)
	cfg.ReconcileBatchSize = getEnvInt("RECONCILE_BATCH_SIZE", 100)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", time.Hour)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitVerify = getEnvInt("RATE_LIMIT_VERIFY", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
