package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/tokengate/internal/model"
)

// uniqueViolation はPostgreSQLの一意性制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresBindingRepo はPostgreSQLを使用したBindingリポジトリ。
type PostgresBindingRepo struct {
	db *sql.DB
}

// NewPostgresBindingRepo はPostgresBindingRepoを生成する。
func NewPostgresBindingRepo(db *sql.DB) *PostgresBindingRepo {
	return &PostgresBindingRepo{db: db}
}

// FindByDiscordID は指定DiscordアカウントIDのBindingを取得する。見つからない場合はnilを返す。
func (r *PostgresBindingRepo) FindByDiscordID(ctx context.Context, discordID string) (*model.Binding, error) {
	return r.findOne(ctx,
		`SELECT discord_id, fid, primary_wallet, balance, display_name, created_at, last_checked_at
		 FROM bindings WHERE discord_id = $1`,
		discordID,
	)
}

// FindByFID は指定Farcaster IDのBindingを取得する。見つからない場合はnilを返す。
func (r *PostgresBindingRepo) FindByFID(ctx context.Context, fid int64) (*model.Binding, error) {
	return r.findOne(ctx,
		`SELECT discord_id, fid, primary_wallet, balance, display_name, created_at, last_checked_at
		 FROM bindings WHERE fid = $1`,
		fid,
	)
}

// FindByWallet は指定プライマリウォレットのBindingを取得する。見つからない場合はnilを返す。
func (r *PostgresBindingRepo) FindByWallet(ctx context.Context, wallet string) (*model.Binding, error) {
	return r.findOne(ctx,
		`SELECT discord_id, fid, primary_wallet, balance, display_name, created_at, last_checked_at
		 FROM bindings WHERE primary_wallet = $1`,
		wallet,
	)
}

// Upsert はBindingをdiscord_idキーでUPSERTする。
// fid/primary_walletの一意性制約に違反した場合は、違反した制約に応じて
// ErrFIDConflictまたはErrWalletConflictを返す。
func (r *PostgresBindingRepo) Upsert(ctx context.Context, b *model.Binding) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bindings (discord_id, fid, primary_wallet, balance, display_name, created_at, last_checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (discord_id) DO UPDATE SET
		   fid = EXCLUDED.fid,
		   primary_wallet = EXCLUDED.primary_wallet,
		   balance = EXCLUDED.balance,
		   display_name = EXCLUDED.display_name,
		   last_checked_at = EXCLUDED.last_checked_at`,
		b.DiscordID, fidToSQL(b.FID), b.PrimaryWallet, b.Balance, b.DisplayName, b.CreatedAt, b.LastCheckedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return conflictError(pqErr.Constraint)
		}
		return fmt.Errorf("failed to upsert binding: %w", err)
	}
	return nil
}

// conflictError は違反した一意性制約名を対応する競合エラーに変換する。
func conflictError(constraint string) error {
	switch constraint {
	case "bindings_fid_key":
		return ErrFIDConflict
	case "bindings_primary_wallet_key":
		return ErrWalletConflict
	default:
		return ErrConflict
	}
}

// UpdateCheckResult は再検証結果をインプレース更新する。プライマリウォレットは変更しない。
func (r *PostgresBindingRepo) UpdateCheckResult(ctx context.Context, discordID string, balance int64, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bindings SET balance = $2, last_checked_at = $3 WHERE discord_id = $1`,
		discordID, balance, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update check result: %w", err)
	}
	return nil
}

// DeleteByDiscordID は指定DiscordアカウントIDのBindingを削除する。冪等。
func (r *PostgresBindingRepo) DeleteByDiscordID(ctx context.Context, discordID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bindings WHERE discord_id = $1`,
		discordID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	return nil
}

// ListStale はlast_checked_atがolderThanより古いBindingを古い順に最大limit件取得する。
func (r *PostgresBindingRepo) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.Binding, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT discord_id, fid, primary_wallet, balance, display_name, created_at, last_checked_at
		 FROM bindings
		 WHERE last_checked_at < $1
		 ORDER BY last_checked_at ASC
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*model.Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale bindings: %w", err)
	}

	return bindings, nil
}

// Count はBindingの総数を返す。
func (r *PostgresBindingRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bindings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bindings: %w", err)
	}
	return count, nil
}

// findOne は単一行クエリを実行してBindingを返す。見つからない場合はnilを返す。
func (r *PostgresBindingRepo) findOne(ctx context.Context, query string, arg interface{}) (*model.Binding, error) {
	b, err := scanBinding(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find binding: %w", err)
	}
	return b, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanBinding は1行分のカラムをBindingに詰め替える。
func scanBinding(row rowScanner) (*model.Binding, error) {
	b := &model.Binding{}
	var fid sql.NullInt64
	err := row.Scan(&b.DiscordID, &fid, &b.PrimaryWallet, &b.Balance, &b.DisplayName, &b.CreatedAt, &b.LastCheckedAt)
	if err != nil {
		return nil, err
	}
	if fid.Valid {
		b.FID = model.NewFID(fid.Int64)
	}
	return b, nil
}

// fidToSQL はFIDをNULL許容のSQL値に変換する。
func fidToSQL(f model.FID) sql.NullInt64 {
	if !f.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: f.Value, Valid: true}
}

// compile-time interface check
var _ BindingRepository = (*PostgresBindingRepo)(nil)
