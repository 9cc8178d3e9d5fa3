package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultAPIBaseURL はDiscord REST APIのベースURL。
const defaultAPIBaseURL = "https://discord.com/api/v10"

// RoleManagerConfig はRoleManagerの設定。
type RoleManagerConfig struct {
	BotToken string
	GuildID  string
	RoleID   string

	// テスト用にオーバーライド可能なベースURL
	APIBaseURL string
}

// RoleManager はDiscordギルドロールの付与・剥奪を行う。
// Discordのロールエンドポイントは冪等で、付与済みロールの再付与や
// 未付与ロールの剥奪も204を返す。
type RoleManager struct {
	config     RoleManagerConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRoleManager はRoleManagerを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewRoleManager(config RoleManagerConfig, httpClient *http.Client, logger *slog.Logger) *RoleManager {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RoleManager{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Grant は指定DiscordユーザーにロールをPUTで付与する。冪等。
func (m *RoleManager) Grant(ctx context.Context, accountID string) error {
	return m.modifyRole(ctx, http.MethodPut, accountID)
}

// Revoke は指定DiscordユーザーからロールをDELETEで剥奪する。冪等。
// ユーザーが既にギルドを退出している場合（404）もエラーにしない。
func (m *RoleManager) Revoke(ctx context.Context, accountID string) error {
	err := m.modifyRole(ctx, http.MethodDelete, accountID)
	if err != nil {
		var statusErr *roleStatusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
			m.logger.Info("ロール剥奪対象のメンバーが見つかりません（退出済みとして扱います）",
				slog.String("account_id", accountID),
			)
			return nil
		}
		return err
	}
	return nil
}

// roleStatusError はDiscord APIのエラーステータスを表す。
type roleStatusError struct {
	status int
	body   string
}

func (e *roleStatusError) Error() string {
	return fmt.Sprintf("discord api returned status %d: %s", e.status, e.body)
}

// modifyRole はロールエンドポイントにmethodでリクエストを送る。
func (m *RoleManager) modifyRole(ctx context.Context, method, accountID string) error {
	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s",
		m.config.APIBaseURL, m.config.GuildID, accountID, m.config.RoleID)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create role request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+m.config.BotToken)
	req.Header.Set("X-Audit-Log-Reason", "tokengate holder verification")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("role request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &roleStatusError{status: resp.StatusCode, body: string(body)}
	}

	return nil
}
