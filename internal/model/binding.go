// Package model はドメインモデルを定義する。
package model

import "time"

// Binding は検証成功の永続レコードを表す。
// DiscordユーザーIDをキーとし、プライマリウォレットと保有数の合計を保持する。
type Binding struct {
	DiscordID     string
	FID           FID
	PrimaryWallet string // 小文字正規化済み
	Balance       int64  // 全候補ウォレットの保有数合計（最終チェック時点）
	DisplayName   string
	CreatedAt     time.Time
	LastCheckedAt time.Time
}

// PendingSession はOAuthリダイレクト往復をつなぐ一時レコードを表す。
// IDはOAuthのstateパラメータとしてそのまま使用する。
type PendingSession struct {
	ID        string
	FID       FID
	Wallet    string // 小文字正規化済み
	CreatedAt time.Time
}

// Expired はセッションがTTLを超過しているかを返す。
func (s *PendingSession) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.CreatedAt) > ttl
}
