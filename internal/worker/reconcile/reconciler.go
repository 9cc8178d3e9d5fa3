// Package reconcile は既存Bindingの定期再検証を提供する。
// 保有数が0になったBindingのロール剥奪と削除、それ以外の残高更新を行う。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/model"
	"github.com/hitoshi/tokengate/internal/repository"
	"github.com/hitoshi/tokengate/internal/verify"
)

// Reconciler は1件のBindingを再検証する。
type Reconciler struct {
	resolver    *verify.Resolver
	aggregator  *verify.Aggregator
	bindingRepo repository.BindingRepository
	roles       verify.RoleManager
	metrics     metrics.Recorder
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	resolver *verify.Resolver,
	aggregator *verify.Aggregator,
	bindingRepo repository.BindingRepository,
	roles verify.RoleManager,
	rec metrics.Recorder,
	logger *slog.Logger,
	callTimeout time.Duration,
) *Reconciler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Reconciler{
		resolver:    resolver,
		aggregator:  aggregator,
		bindingRepo: bindingRepo,
		roles:       roles,
		metrics:     rec,
		logger:      logger,
		callTimeout: callTimeout,
	}
}

// Recheck はBindingを再検証する。
// 保存済みのFarcaster IDとプライマリウォレットで候補解決と残高集約をやり直し、
// 合計0ならロールを剥奪してBindingを削除する。正の場合は残高とチェック日時を
// インプレース更新する（プライマリウォレットは変更しない）。
// 剥奪に失敗した場合はBindingを残し、次回サイクルで再試行される。
func (r *Reconciler) Recheck(ctx context.Context, binding *model.Binding) (revoked bool, err error) {
	resolution := r.resolver.Resolve(ctx, binding.PrimaryWallet, binding.FID)
	holdings := r.aggregator.Aggregate(ctx, resolution.Wallets)

	if holdings.IsHolder() {
		if err := r.bindingRepo.UpdateCheckResult(ctx, binding.DiscordID, holdings.Total, time.Now()); err != nil {
			return false, fmt.Errorf("failed to update binding: %w", err)
		}
		r.logger.Info("Bindingを更新しました",
			slog.String("account_id", binding.DiscordID),
			slog.Int64("balance", holdings.Total),
		)
		return false, nil
	}

	// 保有数0: ロール剥奪が成功した場合のみBindingを削除する
	revokeCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err = r.roles.Revoke(revokeCtx, binding.DiscordID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	r.metrics.RecordRoleRevoke()

	if err := r.bindingRepo.DeleteByDiscordID(ctx, binding.DiscordID); err != nil {
		return false, fmt.Errorf("failed to delete binding: %w", err)
	}

	r.logger.Info("保有なしのためBindingを削除しました",
		slog.String("account_id", binding.DiscordID),
		slog.String("primary_wallet", binding.PrimaryWallet),
	)

	return true, nil
}
