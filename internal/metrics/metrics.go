// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/feedshelf/internal/model"
)

// Collector はPrometheusメトリクスを収集する実装。
// フェッチワーカー、状態変更サービス、HTTPミドルウェアから利用する。
type Collector struct {
	fetchTotal       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	contentsImported *prometheus.CounterVec
	mutations        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedshelf_fetch_total",
			Help: "結果別のフィードフェッチ数",
		}, []string{"result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedshelf_fetch_latency_seconds",
			Help:    "フィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		contentsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedshelf_contents_imported_total",
			Help: "フェッチで取り込んだコンテンツ数",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedshelf_mutations_total",
			Help: "操作と結果別の状態変更数",
		}, []string{"operation", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedshelf_http_requests_total",
			Help: "メソッドとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedshelf_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.fetchLatency,
		c.contentsImported,
		c.mutations,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordFetch はフェッチ結果とレイテンシを記録する。
func (c *Collector) RecordFetch(result string, duration time.Duration) {
	c.fetchTotal.WithLabelValues(result).Inc()
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordImport はフェッチで取り込んだコンテンツ数を記録する。
func (c *Collector) RecordImport(created, refreshed, skipped int) {
	c.contentsImported.WithLabelValues("created").Add(float64(created))
	c.contentsImported.WithLabelValues("refreshed").Add(float64(refreshed))
	c.contentsImported.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordMutation は状態変更の結果を記録する。
func (c *Collector) RecordMutation(operation string, err error) {
	c.mutations.WithLabelValues(operation, mutationOutcome(err)).Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func mutationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case model.IsNotFound(err):
		return "not_found"
	case model.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
