package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientMetrics ledgerctl側のPrometheusメトリクス
// ledgerclient.Metrics と gate.Metrics を実装する
type ClientMetrics struct {
	registry *prometheus.Registry

	useCredit     *prometheus.CounterVec
	refresh       *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	purchases     prometheus.Counter
	decisions     *prometheus.CounterVec
}

// NewClientMetrics 専用のレジストリにメトリクスを登録して作成
func NewClientMetrics() *ClientMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &ClientMetrics{
		registry: reg,
		useCredit: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerclient_use_credit_total",
			Help: "UseCredit outcomes by result and error code",
		}, []string{"outcome", "code"}),
		refresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerclient_refresh_total",
			Help: "Balance refreshes by result",
		}, []string{"result"}),
		remoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerclient_remote_latency_seconds",
			Help:    "Latency of remote ledger calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		purchases: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerclient_purchase_notifications_total",
			Help: "Purchase notifications raised after a refresh",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Action gate decisions by action and surface",
		}, []string{"action", "surface"}),
	}
}

// ObserveUseCredit UseCreditの結果を記録
func (m *ClientMetrics) ObserveUseCredit(outcome, code string) {
	m.useCredit.WithLabelValues(outcome, code).Inc()
}

// ObserveRefresh 残高更新の結果を記録
func (m *ClientMetrics) ObserveRefresh(result string) {
	m.refresh.WithLabelValues(result).Inc()
}

// ObserveRemoteLatency リモート呼び出しのレイテンシを記録
func (m *ClientMetrics) ObserveRemoteLatency(operation string, d time.Duration) {
	m.remoteLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObservePurchaseNotification 購入通知を記録
func (m *ClientMetrics) ObservePurchaseNotification() {
	m.purchases.Inc()
}

// ObserveDecision ゲートの判定を記録
func (m *ClientMetrics) ObserveDecision(action, surface string) {
	m.decisions.WithLabelValues(action, surface).Inc()
}

// Registry レジストリを返す
func (m *ClientMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 用のハンドラーを返す
func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
