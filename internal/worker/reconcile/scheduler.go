package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/model"
	"github.com/hitoshi/tokengate/internal/repository"
)

// BindingRechecker はBinding再検証の実行インターフェース。
type BindingRechecker interface {
	// Recheck はBindingを再検証し、削除した場合はtrueを返す。
	Recheck(ctx context.Context, binding *model.Binding) (bool, error)
}

// SchedulerConfig は再検証スケジューラの設定。
type SchedulerConfig struct {
	Interval   time.Duration // サイクル間隔（デフォルト6時間）
	StaleAfter time.Duration // 再検証対象とみなす経過時間（デフォルト24時間）
	BatchSize  int           // 1サイクルあたりの最大処理件数（デフォルト100）
}

// Scheduler は固定間隔でstaleなBindingを再検証する。
// 1件の失敗はログに記録して次のBindingに進み、サイクル全体を中断しない。
type Scheduler struct {
	bindingRepo repository.BindingRepository
	rechecker   BindingRechecker
	metrics     metrics.Recorder
	logger      *slog.Logger
	config      SchedulerConfig
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(
	bindingRepo repository.BindingRepository,
	rechecker BindingRechecker,
	rec metrics.Recorder,
	logger *slog.Logger,
	config SchedulerConfig,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Scheduler{
		bindingRepo: bindingRepo,
		rechecker:   rechecker,
		metrics:     rec,
		logger:      logger,
		config:      config,
	}
}

// Start は固定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("再検証スケジューラを開始しました",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("stale_after", s.config.StaleAfter),
		slog.Int("batch_size", s.config.BatchSize),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("再検証サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再検証スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("再検証サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はstaleなBindingを1バッチ分再検証する。
// 対象はlast_checked_atが古い順に最大BatchSize件。
// Binding単位のエラーはログに記録して続行し、同一サイクル内ではリトライしない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	runID := uuid.New().String()

	olderThan := start.Add(-s.config.StaleAfter)
	bindings, err := s.bindingRepo.ListStale(ctx, olderThan, s.config.BatchSize)
	if err != nil {
		return err
	}

	if len(bindings) == 0 {
		s.logger.Info("再検証対象のBindingはありません",
			slog.String("run_id", runID),
		)
		return nil
	}

	s.logger.Info("再検証サイクルを開始します",
		slog.String("run_id", runID),
		slog.Int("binding_count", len(bindings)),
	)

	revoked := 0
	for _, binding := range bindings {
		if ctx.Err() != nil {
			break
		}

		wasRevoked, err := s.rechecker.Recheck(ctx, binding)
		if err != nil {
			s.logger.Error("Bindingの再検証に失敗しました",
				slog.String("run_id", runID),
				slog.String("account_id", binding.DiscordID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if wasRevoked {
			revoked++
		}
	}

	duration := time.Since(start)
	s.metrics.RecordReconcileCycle(len(bindings), revoked, duration)
	s.logger.Info("再検証サイクルが完了しました",
		slog.String("run_id", runID),
		slog.Int("binding_count", len(bindings)),
		slog.Int("revoked_count", revoked),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// compile-time interface check
var _ BindingRechecker = (*Reconciler)(nil)
