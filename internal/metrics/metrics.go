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
// ミドルウェア、セッションストア、キャッシュから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRateLimited(limiter string)
	RecordAuthFailure(reason string)
	RecordPermissionDenied(permission string)
	RecordSessionCreated()
	RecordSessionsEvicted(count int)
	RecordSessionsExpired(count int64)
	RecordCacheHit(namespace string)
	RecordCacheMiss(namespace string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	rateLimited      *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	permissionDenied *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionsEvicted  prometheus.Counter
	sessionsExpired  prometheus.Counter
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gardenvisit_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limiter"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_auth_failures_total",
			Help: "認証失敗の合計数",
		}, []string{"reason"}),
		permissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_permission_denied_total",
			Help: "権限不足で拒否されたリクエスト数",
		}, []string{"permission"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gardenvisit_sessions_created_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gardenvisit_sessions_evicted_total",
			Help: "同時セッション上限により削除されたセッション数",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gardenvisit_sessions_expired_total",
			Help: "期限切れとして削除されたセッション数",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_cache_hits_total",
			Help: "キャッシュヒット数",
		}, []string{"namespace"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gardenvisit_cache_misses_total",
			Help: "キャッシュミス数",
		}, []string{"namespace"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.rateLimited,
		c.authFailures,
		c.permissionDenied,
		c.sessionsCreated,
		c.sessionsEvicted,
		c.sessionsExpired,
		c.cacheHits,
		c.cacheMisses,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limiter string) {
	c.rateLimited.WithLabelValues(limiter).Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordPermissionDenied は権限不足による拒否を記録する。
func (c *Collector) RecordPermissionDenied(permission string) {
	c.permissionDenied.WithLabelValues(permission).Inc()
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionsEvicted は上限超過で削除したセッション数を記録する。
func (c *Collector) RecordSessionsEvicted(count int) {
	c.sessionsEvicted.Add(float64(count))
}

// RecordSessionsExpired は期限切れ削除したセッション数を記録する。
func (c *Collector) RecordSessionsExpired(count int64) {
	c.sessionsExpired.Add(float64(count))
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(namespace string) {
	c.cacheHits.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(namespace string) {
	c.cacheMisses.WithLabelValues(namespace).Inc()
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

var _ MetricsCollector = (*Collector)(nil)
