// Package discord はDiscord OAuth認証とギルドロール操作を提供する。
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultAuthorizeURL = "https://discord.com/oauth2/authorize"
	defaultTokenURL     = "https://discord.com/api/oauth2/token"
	defaultUserURL      = "https://discord.com/api/users/@me"
)

// OAuthUserInfo はDiscord OAuthで取得したユーザー情報を表す。
type OAuthUserInfo struct {
	AccountID   string // DiscordユーザーID（snowflake）
	DisplayName string // global_nameがあればそれ、なければusername
}

// OAuthConfig はDiscord OAuthプロバイダーの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthorizeURL string
	TokenURL     string
	UserURL      string
}

// OAuthProvider はDiscord OAuth 2.0による認証を提供する。
type OAuthProvider struct {
	config     OAuthConfig
	httpClient *http.Client
}

// NewOAuthProvider はOAuthProviderを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewOAuthProvider(config OAuthConfig, httpClient *http.Client) *OAuthProvider {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultUserURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthProvider{config: config, httpClient: httpClient}
}

// GetLoginURL はDiscord OAuthの認可URLを生成する。
// スコープはidentifyのみ（ユーザーIDと表示名の取得に必要十分）。
func (p *OAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"identify"},
		"state":         {state},
	}
	return p.config.AuthorizeURL + "?" + params.Encode()
}

// tokenResponse はDiscordのトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// userResponse はDiscordの/users/@meエンドポイントのレスポンス。
type userResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	// 1. 認可コードをアクセストークンに交換
	token, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	displayName := user.GlobalName
	if displayName == "" {
		displayName = user.Username
	}

	return &OAuthUserInfo{
		AccountID:   user.ID,
		DisplayName: displayName,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *OAuthProvider) exchangeToken(ctx context.Context, code string) (*tokenResponse, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &token, nil
}

// fetchUser はアクセストークンでDiscordのユーザー情報を取得する。
func (p *OAuthProvider) fetchUser(ctx context.Context, accessToken string) (*userResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var user userResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("empty user id in response")
	}

	return &user, nil
}
