// Package metrics はSDKのPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// トランスポート層、認証、関数呼び出しから利用する。
type Recorder interface {
	RecordRequest(route string, statusCode int, duration time.Duration)
	RecordLogin(providerType string, ok bool)
	RecordFunctionCall(name string, ok bool, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	functionCalls   *prometheus.CounterVec
	functionLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appclient_requests_total",
			Help: "バックエンドへのリクエスト数（ルート・ステータス別）",
		}, []string{"route", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appclient_request_latency_seconds",
			Help:    "バックエンドへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appclient_logins_total",
			Help: "ログイン試行数（プロバイダー種別・結果別）",
		}, []string{"provider_type", "result"}),
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appclient_function_calls_total",
			Help: "リモート関数呼び出し数（結果別）",
		}, []string{"result"}),
		functionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "appclient_function_call_latency_seconds",
			Help:    "リモート関数呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.logins,
		c.functionCalls,
		c.functionLatency,
	)

	return c
}

// RecordRequest はHTTPリクエストの結果を記録する。
// 通信失敗でレスポンスがない場合、statusCodeは0として記録される。
func (c *Collector) RecordRequest(route string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.requestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(providerType string, ok bool) {
	c.logins.WithLabelValues(providerType, resultLabel(ok)).Inc()
}

// RecordFunctionCall はリモート関数呼び出しの結果を記録する。
// 関数名はカーディナリティを抑えるためラベルに含めない。
func (c *Collector) RecordFunctionCall(name string, ok bool, duration time.Duration) {
	c.functionCalls.WithLabelValues(resultLabel(ok)).Inc()
	c.functionLatency.Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordRequest(string, int, time.Duration) {}
func (Nop) RecordLogin(string, bool) {}
func (Nop) RecordFunctionCall(string, bool, time.Duration) {}

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
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
