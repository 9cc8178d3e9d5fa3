// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tokengate/internal/model"
)

// ErrConflict は一意性制約違反（同時検証のレースでDB制約に到達した場合）を表す。
// どの制約に違反したかはErrFIDConflict / ErrWalletConflictで区別できる。
var ErrConflict = errors.New("binding conflicts with an existing record")

// ErrFIDConflict はFarcaster IDが別のDiscordアカウントに紐付いていることを表す。
var ErrFIDConflict = fmt.Errorf("fid already linked: %w", ErrConflict)

// ErrWalletConflict はプライマリウォレットが別のDiscordアカウントに紐付いていることを表す。
var ErrWalletConflict = fmt.Errorf("wallet already linked: %w", ErrConflict)

// BindingRepository はBindingの永続化インターフェース。
type BindingRepository interface {
	// FindByDiscordID は指定DiscordアカウントIDのBindingを取得する。見つからない場合はnilを返す。
	FindByDiscordID(ctx context.Context, discordID string) (*model.Binding, error)

	// FindByFID は指定Farcaster IDのBindingを取得する。見つからない場合はnilを返す。
	FindByFID(ctx context.Context, fid int64) (*model.Binding, error)

	// FindByWallet は指定プライマリウォレットのBindingを取得する。見つからない場合はnilを返す。
	FindByWallet(ctx context.Context, wallet string) (*model.Binding, error)

	// Upsert はBindingをdiscord_idキーでUPSERTする。
	// 同一discord_idの既存レコードは全フィールド上書きされる（再検証）。
	// fid/primary_walletの一意性制約に違反した場合はErrFIDConflict / ErrWalletConflictを返す。
	Upsert(ctx context.Context, b *model.Binding) error

	// UpdateCheckResult は再検証結果（残高とチェック日時）をインプレース更新する。
	// プライマリウォレットは変更しない。
	UpdateCheckResult(ctx context.Context, discordID string, balance int64, checkedAt time.Time) error

	// DeleteByDiscordID は指定DiscordアカウントIDのBindingを削除する。
	// 存在しない場合もエラーにならない（冪等）。
	DeleteByDiscordID(ctx context.Context, discordID string) error

	// ListStale はlast_checked_atがolderThanより古いBindingを古い順に最大limit件取得する。
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.Binding, error)

	// Count はBindingの総数を返す。
	Count(ctx context.Context) (int, error)
}

// PendingSessionRepository はPendingSessionの永続化インターフェース。
type PendingSessionRepository interface {
	// Create はPendingSessionを作成する。
	Create(ctx context.Context, session *model.PendingSession) error

	// Consume は指定IDのセッションを取得と同時に削除する（read-then-delete）。
	// 単一のDELETE ... RETURNINGで実行するため、同一IDの消費は高々1回になる。
	// 見つからない場合はnilを返す。
	Consume(ctx context.Context, id string) (*model.PendingSession, error)

	// DeleteExpired はcreated_atがolderThanより古いセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
