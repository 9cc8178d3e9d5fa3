// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// 検証フローと再検証ワーカーから利用する。
type Recorder interface {
	RecordVerification(outcome string)
	RecordRoleGrant()
	RecordRoleRevoke()
	RecordBalanceLookupFailure()
	RecordSocialLookupFailure()
	RecordReconcileCycle(processed, revoked int, duration time.Duration)
}

// 検証結果のoutcomeラベル値。
const (
	OutcomeVerified  = "verified"
	OutcomeNotHolder = "not_holder"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	verifications     *prometheus.CounterVec
	roleGrants        prometheus.Counter
	roleRevokes       prometheus.Counter
	balanceLookupFail prometheus.Counter
	socialLookupFail  prometheus.Counter
	reconcileLatency  prometheus.Histogram
	reconcileChecked  prometheus.Counter
	reconcileRevoked  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_verifications_total",
			Help: "検証試行の結果別合計数",
		}, []string{"outcome"}),
		roleGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_role_grants_total",
			Help: "ロール付与成功の合計数",
		}),
		roleRevokes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_role_revokes_total",
			Help: "ロール剥奪成功の合計数",
		}),
		balanceLookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_balance_lookup_fail_total",
			Help: "オンチェーン残高照会失敗の合計数",
		}),
		socialLookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_social_lookup_fail_total",
			Help: "ソーシャルグラフ照会失敗の合計数",
		}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokengate_reconcile_cycle_seconds",
			Help:    "再検証サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_reconcile_checked_total",
			Help: "再検証されたBindingの合計数",
		}),
		reconcileRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_reconcile_revoked_total",
			Help: "再検証で削除されたBindingの合計数",
		}),
	}

	reg.MustRegister(
		c.verifications,
		c.roleGrants,
		c.roleRevokes,
		c.balanceLookupFail,
		c.socialLookupFail,
		c.reconcileLatency,
		c.reconcileChecked,
		c.reconcileRevoked,
	)

	return c
}

// RecordVerification は検証試行の結果を記録する。
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// RecordRoleGrant はロール付与成功を記録する。
func (c *Collector) RecordRoleGrant() {
	c.roleGrants.Inc()
}

// RecordRoleRevoke はロール剥奪成功を記録する。
func (c *Collector) RecordRoleRevoke() {
	c.roleRevokes.Inc()
}

// RecordBalanceLookupFailure は残高照会失敗を記録する。
func (c *Collector) RecordBalanceLookupFailure() {
	c.balanceLookupFail.Inc()
}

// RecordSocialLookupFailure はソーシャルグラフ照会失敗を記録する。
func (c *Collector) RecordSocialLookupFailure() {
	c.socialLookupFail.Inc()
}

// RecordReconcileCycle は再検証サイクルの結果を記録する。
func (c *Collector) RecordReconcileCycle(processed, revoked int, duration time.Duration) {
	c.reconcileChecked.Add(float64(processed))
	c.reconcileRevoked.Add(float64(revoked))
	c.reconcileLatency.Observe(duration.Seconds())
}

// Noop は何も記録しないRecorder。テストおよび未設定時に使用する。
type Noop struct{}

// RecordVerification は何もしない。
func (Noop) RecordVerification(string) {}

// RecordRoleGrant は何もしない。
func (Noop) RecordRoleGrant() {}

// RecordRoleRevoke は何もしない。
func (Noop) RecordRoleRevoke() {}

// RecordBalanceLookupFailure は何もしない。
func (Noop) RecordBalanceLookupFailure() {}

// RecordSocialLookupFailure は何もしない。
func (Noop) RecordSocialLookupFailure() {}

// RecordReconcileCycle は何もしない。
func (Noop) RecordReconcileCycle(int, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Noop{}
)
