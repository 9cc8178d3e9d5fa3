// Package social はFarcasterソーシャルグラフ（Neynar API）の照会を提供する。
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tokengate/internal/model"
)

// defaultEndpoint はNeynarのユーザー一括取得APIのエンドポイント。
const defaultEndpoint = "https://api.neynar.com/v2/farcaster/user/bulk"

// Client はNeynar APIのクライアント。
// Farcaster IDから検証済みウォレットとプロフィールシグナルを取得する。
type Client struct {
	httpClient *http.Client
	apiKey     string
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
func NewClient(httpClient *http.Client, apiKey string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// bulkUser はNeynarのユーザー一括取得APIのユーザー1件分。
type bulkUser struct {
	FID            int64    `json:"fid"`
	Username       string   `json:"username"`
	DisplayName    string   `json:"display_name"`
	PfpURL         string   `json:"pfp_url"`
	FollowerCount  int      `json:"follower_count"`
	FollowingCount int      `json:"following_count"`
	PowerBadge     bool     `json:"power_badge"`
	Verifications  []string `json:"verifications"`
}

// bulkResponse はNeynarのユーザー一括取得APIのレスポンス。
type bulkResponse struct {
	Users []bulkUser `json:"users"`
}

// UserByFID は指定Farcaster IDのユーザーを取得する。
// 見つからない場合はnilを返す。呼び出し失敗はエラーとして返し、
// 呼び出し元が「ソーシャル照会なし」へのフォールバックを判断する。
func (c *Client) UserByFID(ctx context.Context, fid int64) (*model.SocialUser, error) {
	url := fmt.Sprintf("%s?fids=%d", c.endpoint, fid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create neynar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Neynar APIの呼び出しに失敗しました",
			slog.Int64("fid", fid),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Neynar APIがエラーステータスを返しました",
			slog.Int64("fid", fid),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("neynar api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read neynar response: %w", err)
	}

	var parsed bulkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse neynar response: %w", err)
	}

	if len(parsed.Users) == 0 {
		return nil, nil
	}

	u := parsed.Users[0]
	return &model.SocialUser{
		Wallets: u.Verifications,
		Profile: model.SocialProfile{
			FollowerCount:  u.FollowerCount,
			FollowingCount: u.FollowingCount,
			VerifiedAddrs:  len(u.Verifications),
			PowerBadge:     u.PowerBadge,
			HasAvatar:      u.PfpURL != "",
			HasDisplayName: u.DisplayName != "" && u.DisplayName != u.Username,
		},
	}, nil
}
