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
// モデレーションサービス、失効ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordTransition(action, from, to string)
	RecordRejection(action, code string)
	RecordConflict(action string)
	RecordExpiryCycle(expired, failed int, duration time.Duration)
	RecordSanitizeLog(target string, scam bool)
	RecordFraudReport()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	expired       prometheus.Counter
	expiryFail    prometheus.Counter
	expiryLatency prometheus.Histogram
	sanitizeLogs  *prometheus.CounterVec
	fraudReports  prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_transitions_total",
			Help: "成功した状態遷移の合計数",
		}, []string{"action", "from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_transition_rejections_total",
			Help: "ガードに拒否された遷移の合計数",
		}, []string{"action", "code"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_concurrent_modifications_total",
			Help: "楽観的排他制御で検出された競合の合計数",
		}, []string{"action"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_expired_total",
			Help: "失効ワーカーがEXPIREDにした掲載の合計数",
		}),
		expiryFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_expiry_fail_total",
			Help: "失効処理に失敗した掲載の合計数",
		}),
		expiryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "listingd_expiry_cycle_seconds",
			Help:    "失効ワーカー1サイクルの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sanitizeLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_sanitize_logs_total",
			Help: "記録されたサニタイズログの合計数",
		}, []string{"target", "scam"}),
		fraudReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_fraud_reports_total",
			Help: "受け付けた不正報告の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.transitions,
		c.rejections,
		c.conflicts,
		c.expired,
		c.expiryFail,
		c.expiryLatency,
		c.sanitizeLogs,
		c.fraudReports,
		c.httpStatus,
	)

	return c
}

// RecordTransition は成功した状態遷移を記録する。
func (c *Collector) RecordTransition(action, from, to string) {
	c.transitions.WithLabelValues(action, from, to).Inc()
}

// RecordRejection はガードによる拒否をエラーコード別に記録する。
func (c *Collector) RecordRejection(action, code string) {
	c.rejections.WithLabelValues(action, code).Inc()
}

// RecordConflict はバージョン不一致による競合を記録する。
func (c *Collector) RecordConflict(action string) {
	c.conflicts.WithLabelValues(action).Inc()
}

// RecordExpiryCycle は失効ワーカー1サイクルの結果を記録する。
func (c *Collector) RecordExpiryCycle(expired, failed int, duration time.Duration) {
	c.expired.Add(float64(expired))
	c.expiryFail.Add(float64(failed))
	c.expiryLatency.Observe(duration.Seconds())
}

// RecordSanitizeLog はサニタイズログの記録を対象別に記録する。
func (c *Collector) RecordSanitizeLog(target string, scam bool) {
	c.sanitizeLogs.WithLabelValues(target, strconv.FormatBool(scam)).Inc()
}

// RecordFraudReport は不正報告の受付を記録する。
func (c *Collector) RecordFraudReport() {
	c.fraudReports.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordTransition(action, from, to string) {}
func (Nop) RecordRejection(action, code string) {}
func (Nop) RecordConflict(action string) {}
func (Nop) RecordExpiryCycle(expired, failed int, duration time.Duration) {}
func (Nop) RecordSanitizeLog(target string, scam bool) {}
func (Nop) RecordFraudReport() {}
func (Nop) RecordHTTPStatus(statusCode int) {}

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

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
