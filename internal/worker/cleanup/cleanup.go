// Package cleanup は失効したPendingSessionの自動削除ジョブを提供する。
// TTL（デフォルト1時間）を超過したセッションを固定間隔で無条件に削除する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tokengate/internal/repository"
)

// SweepJob は失効PendingSessionの削除ジョブ。
// 使い捨てデータの掃除であり、リトライ制御は持たない。
type SweepJob struct {
	sessionRepo repository.PendingSessionRepository
	logger      *slog.Logger
	TTL         time.Duration // セッションの有効期間（デフォルト: 1時間）
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(sessionRepo repository.PendingSessionRepository, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		sessionRepo: sessionRepo,
		logger:      logger,
		TTL:         time.Hour,
	}
}

// Run はTTLを超過したPendingSessionを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessionRepo.DeleteExpired(ctx, start.Add(-j.TTL))
	if err != nil {
		j.logger.Error("セッション掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	duration := time.Since(start)
	j.logger.Info("セッション掃除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("ttl", j.TTL),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は固定間隔でRunを繰り返し実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("セッション掃除ジョブが失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("セッション掃除ジョブが失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
