package model

import (
	"errors"
	"fmt"
)

// ErrInvalidFID はFarcaster IDとして解釈できない入力を表す。
var ErrInvalidFID = errors.New("invalid farcaster id")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, conflict, chain, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidWallet       = "INVALID_WALLET"
	ErrCodeInvalidFID          = "INVALID_FID"
	ErrCodeInvalidAccountID    = "INVALID_ACCOUNT_ID"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeOAuthFailed         = "OAUTH_FAILED"
	ErrCodeSocialAlreadyLinked = "SOCIAL_ALREADY_LINKED"
	ErrCodeWalletAlreadyLinked = "WALLET_ALREADY_LINKED"
	ErrCodeRoleGrantFailed     = "ROLE_GRANT_FAILED"
)

// NewInvalidWalletError は不正なウォレットアドレスエラーを生成する。
func NewInvalidWalletError(wallet string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWallet,
		Message:  fmt.Sprintf("無効なウォレットアドレスです: %s", wallet),
		Category: "validation",
		Action:   "0xで始まる40桁の16進アドレスを指定してください。",
	}
}

// NewInvalidFIDError は不正なFarcaster IDエラーを生成する。
func NewInvalidFIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFID,
		Message:  fmt.Sprintf("無効なFarcaster IDです: %s", raw),
		Category: "validation",
		Action:   "Farcaster IDは正の整数で指定してください。未連携の場合は省略できます。",
	}
}

// NewInvalidAccountIDError は不正なDiscordアカウントIDエラーを生成する。
func NewInvalidAccountIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAccountID,
		Message:  fmt.Sprintf("無効なDiscordアカウントIDです: %s", raw),
		Category: "validation",
		Action:   "DiscordアカウントIDは数字のみで指定してください。",
	}
}

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "検証セッションが見つからないか、有効期限が切れています。",
		Category: "auth",
		Action:   "最初から検証をやり直してください。",
	}
}

// NewOAuthFailedError はDiscord認証失敗エラーを生成する。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "Discordアカウントの認証に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSocialAlreadyLinkedError はFarcaster ID重複エラーを生成する。
// linkedToには既に紐付いているアカウントの表示名を指定する。
func NewSocialAlreadyLinkedError(linkedTo string) *APIError {
	return &APIError{
		Code:     ErrCodeSocialAlreadyLinked,
		Message:  fmt.Sprintf("このFarcasterアカウントは既に %s に紐付いています。", linkedTo),
		Category: "conflict",
		Action:   "1つのFarcasterアカウントを複数のDiscordアカウントに紐付けることはできません。",
	}
}

// NewWalletAlreadyLinkedError はウォレット重複エラーを生成する。
// linkedToには既に紐付いているアカウントの表示名を指定する。
func NewWalletAlreadyLinkedError(linkedTo string) *APIError {
	return &APIError{
		Code:     ErrCodeWalletAlreadyLinked,
		Message:  fmt.Sprintf("このウォレットは既に %s に紐付いています。", linkedTo),
		Category: "conflict",
		Action:   "1つのウォレットを複数のDiscordアカウントに紐付けることはできません。",
	}
}

// NewRoleGrantFailedError はロール付与失敗エラーを生成する。
func NewRoleGrantFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRoleGrantFailed,
		Message:  "Discordロールの付与に失敗しました。",
		Category: "system",
		Action:   "Botがサーバーに参加しているか確認のうえ、再度お試しください。",
	}
}
