package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tokengate/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したPendingSessionリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はPendingSessionを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.PendingSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_sessions (id, fid, wallet, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, fidToSQL(session.FID), session.Wallet, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pending session: %w", err)
	}
	return nil
}

// Consume は指定IDのセッションを取得と同時に削除する。
// 単一のDELETE ... RETURNINGで実行するため、同一IDの消費は高々1回になる。
// 見つからない場合はnilを返す。
func (r *PostgresSessionRepo) Consume(ctx context.Context, id string) (*model.PendingSession, error) {
	session := &model.PendingSession{}
	var fid sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM pending_sessions WHERE id = $1
		 RETURNING id, fid, wallet, created_at`,
		id,
	).Scan(&session.ID, &fid, &session.Wallet, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending session: %w", err)
	}

	if fid.Valid {
		session.FID = model.NewFID(fid.Int64)
	}
	return session, nil
}

// DeleteExpired はcreated_atがolderThanより古いセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_sessions WHERE created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ PendingSessionRepository = (*PostgresSessionRepo)(nil)
