package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tokengate/internal/metrics"
)

// BalanceReader はオンチェーン残高照会のインターフェース。
type BalanceReader interface {
	// BalanceOf は指定ウォレットのNFT保有数を返す。
	BalanceOf(ctx context.Context, wallet string) (int64, error)
}

// Holdings は残高集約の結果を表す。
type Holdings struct {
	// Total は全候補ウォレットの保有数合計。
	Total int64
	// PrimaryWallet は入力順で最初に正の残高を持っていたウォレット。
	// 保有なしの場合は空文字列。
	PrimaryWallet string
}

// IsHolder は保有者かどうかを返す。
func (h Holdings) IsHolder() bool {
	return h.Total > 0
}

// Aggregator は候補ウォレットごとの残高を照会して合計する。
// 照会はsemaphoreパターンで並列実行するが、結果は入力インデックスに
// 格納してから走査するため「入力順で最初の正残高」の判定は決定的になる。
type Aggregator struct {
	balances       BalanceReader
	metrics        metrics.Recorder
	logger         *slog.Logger
	maxConcurrency int
	callTimeout    time.Duration
}

// NewAggregator はAggregatorを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を、
// callTimeoutが0以下の場合はデフォルト値10秒を使用する。
func NewAggregator(balances BalanceReader, rec metrics.Recorder, logger *slog.Logger, maxConcurrency int, callTimeout time.Duration) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Aggregator{
		balances:       balances,
		metrics:        rec,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		callTimeout:    callTimeout,
	}
}

// Aggregate は各候補ウォレットの残高を照会し、合計とプライマリウォレットを返す。
// 個別の照会失敗はそのウォレットの残高0として扱い、ログに記録して続行する（リトライなし）。
func (a *Aggregator) Aggregate(ctx context.Context, wallets []string) Holdings {
	results := make([]int64, len(wallets))

	sem := make(chan struct{}, a.maxConcurrency)
	var wg sync.WaitGroup

	for i, wallet := range wallets {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(idx int, w string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 1照会ごとに個別タイムアウト。RPC接続のハングが試行やサイクルを道連れにしない
			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			balance, err := a.balances.BalanceOf(callCtx, w)
			if err != nil {
				a.metrics.RecordBalanceLookupFailure()
				a.logger.Warn("残高照会に失敗したため残高0として扱います",
					slog.String("wallet", w),
					slog.String("error", err.Error()),
				)
				return
			}
			if balance < 0 {
				// 契約上は非負。負値は0として扱う
				balance = 0
			}
			results[idx] = balance
		}(i, wallet)
	}

	wg.Wait()

	var holdings Holdings
	for i, balance := range results {
		if balance > 0 {
			if holdings.PrimaryWallet == "" {
				holdings.PrimaryWallet = wallets[i]
			}
			holdings.Total += balance
		}
	}

	return holdings
}
