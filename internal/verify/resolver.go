// Package verify は保有検証のコアロジックを提供する。
// 候補ウォレットの解決、残高集約、信頼スコア算出、Binding登録を含む。
package verify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/model"
)

// SocialLookup はソーシャルグラフ照会のインターフェース。
type SocialLookup interface {
	// UserByFID は指定Farcaster IDのユーザーを取得する。見つからない場合はnilを返す。
	UserByFID(ctx context.Context, fid int64) (*model.SocialUser, error)
}

// Resolution は候補ウォレット解決の結果を表す。
type Resolution struct {
	// Wallets は小文字正規化・重複排除済みの候補ウォレット。
	// 先頭は必ず申請ウォレットで、以降はソーシャルグラフで発見した順。
	Wallets []string

	// Profile はソーシャルグラフのプロフィール。未連携・照会失敗時はnil。
	Profile *model.SocialProfile
}

// Resolver は申請ウォレットとFarcaster IDから候補ウォレット集合を解決する。
type Resolver struct {
	social  SocialLookup
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewResolver はResolverを生成する。
// socialがnilの場合はソーシャル照会を行わない（ウォレット単独検証）。
func NewResolver(social SocialLookup, rec metrics.Recorder, logger *slog.Logger) *Resolver {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Resolver{social: social, metrics: rec, logger: logger}
}

// Resolve は候補ウォレットの順序付き集合を返す。
// 申請ウォレットが先頭、以降はソーシャルグラフの検証済みアドレスを発見順に並べる。
// ソーシャル照会の失敗・空結果は致命的でなく、申請ウォレットのみで続行する。
// 戻り値のWalletsは空にならない（少なくとも申請ウォレットを含む）。
func (r *Resolver) Resolve(ctx context.Context, wallet string, fid model.FID) *Resolution {
	submitted := NormalizeWallet(wallet)

	res := &Resolution{Wallets: []string{submitted}}

	if !fid.Valid || r.social == nil {
		return res
	}

	user, err := r.social.UserByFID(ctx, fid.Value)
	if err != nil {
		r.metrics.RecordSocialLookupFailure()
		r.logger.Warn("ソーシャルグラフ照会に失敗したためウォレット単独で続行します",
			slog.String("fid", fid.String()),
			slog.String("error", err.Error()),
		)
		return res
	}
	if user == nil {
		return res
	}

	res.Profile = &user.Profile

	seen := map[string]bool{submitted: true}
	for _, w := range user.Wallets {
		normalized := NormalizeWallet(w)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		res.Wallets = append(res.Wallets, normalized)
	}

	return res
}

// NormalizeWallet はウォレットアドレスを小文字に正規化する。
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
