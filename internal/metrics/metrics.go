// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ライフサイクルエンジン、サービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordTransition(from, to string)
	RecordAuthorizationDenied(code string)
	RecordStoreError(operation string)
	RecordStoreLatency(operation string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions    *prometheus.CounterVec
	denied         *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	httpStatus     *prometheus.CounterVec
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_article_transitions_total",
			Help: "記事の状態遷移の合計数",
		}, []string{"from", "to"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_authorization_denied_total",
			Help: "ライフサイクルエンジンが拒否した操作の数（エラーコード別）",
		}, []string{"code"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_store_errors_total",
			Help: "ストレージ障害の数（操作別）",
		}, []string{"operation"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdesk_store_latency_seconds",
			Help:    "ストレージ操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_sessions_purged_total",
			Help: "クリーンアップジョブが削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.transitions,
		c.denied,
		c.storeErrors,
		c.storeLatency,
		c.httpStatus,
		c.sessionsPurged,
	)

	return c
}

// RecordTransition は成功した状態遷移を記録する。
func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordAuthorizationDenied は拒否された操作を記録する。
func (c *Collector) RecordAuthorizationDenied(code string) {
	c.denied.WithLabelValues(code).Inc()
}

// RecordStoreError はストレージ障害を記録する。
func (c *Collector) RecordStoreError(operation string) {
	c.storeErrors.WithLabelValues(operation).Inc()
}

// RecordStoreLatency はストレージ操作のレイテンシを記録する。
func (c *Collector) RecordStoreLatency(operation string, duration time.Duration) {
	c.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除したセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
