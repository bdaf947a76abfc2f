// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は監視ループの動作をPrometheusメトリクスとして収集する。
// fetch.Recorderインターフェースを実装する。
type Collector struct {
	fetchSuccess     *prometheus.CounterVec
	fetchNotModified *prometheus.CounterVec
	fetchFail        *prometheus.CounterVec
	parseFail        *prometheus.CounterVec
	sinkFail         *prometheus.CounterVec
	updatesEmitted   *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_fetch_success_total",
			Help: "処理まで完了したフェッチサイクルの合計数",
		}, []string{"provider"}),
		fetchNotModified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_fetch_not_modified_total",
			Help: "304 Not Modifiedで短絡したフェッチの合計数",
		}, []string{"provider"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_fetch_fail_total",
			Help: "失敗したフェッチの合計数（分類別）",
		}, []string{"provider", "reason"}),
		parseFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_parse_fail_total",
			Help: "レスポンスのパース失敗の合計数",
		}, []string{"provider"}),
		sinkFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_sink_fail_total",
			Help: "Sinkへの配信失敗の合計数",
		}, []string{"sink"}),
		updatesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_updates_emitted_total",
			Help: "発行された新規インシデント更新の合計数",
		}, []string{"provider"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statuswatch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "statuswatch_fetch_latency_seconds",
			Help:    "フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchNotModified,
		c.fetchFail,
		c.parseFail,
		c.sinkFail,
		c.updatesEmitted,
		c.httpStatus,
		c.fetchLatency,
	)

	return c
}

// RecordFetchSuccess は処理まで完了したサイクルを記録する。
func (c *Collector) RecordFetchSuccess(provider string) {
	c.fetchSuccess.WithLabelValues(provider).Inc()
}

// RecordFetchNotModified は304で短絡したフェッチを記録する。
func (c *Collector) RecordFetchNotModified(provider string) {
	c.fetchNotModified.WithLabelValues(provider).Inc()
}

// RecordFetchFailure はフェッチ失敗を分類付きで記録する。
func (c *Collector) RecordFetchFailure(provider string, reason string) {
	c.fetchFail.WithLabelValues(provider, reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(provider string) {
	c.parseFail.WithLabelValues(provider).Inc()
}

// RecordSinkFailure はSinkへの配信失敗を記録する。
func (c *Collector) RecordSinkFailure(sink string) {
	c.sinkFail.WithLabelValues(sink).Inc()
}

// RecordUpdatesEmitted は発行された新規更新の件数を記録する。
func (c *Collector) RecordUpdatesEmitted(provider string, count int) {
	c.updatesEmitted.WithLabelValues(provider).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
