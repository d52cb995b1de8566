package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LblKind   = "kind"
	LblResult = "result"
	LblStage  = "stage"

	ResultOK    = "ok"
	ResultError = "error"
)

// 流水线的各个阶段
const (
	StageAudit   = "audit"
	StageRoute   = "route"
	StageRewrite = "rewrite"
	StageExecute = "execute"
	StageMerge   = "merge"
)

// Metrics 内核流水线的指标，注册到调用方提供的 Registerer 上
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	RouteUnits    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbkernel",
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Counter of statements handled by the kernel.",
			}, []string{LblKind, LblResult}),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dbkernel",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Bucketed histogram of each pipeline stage duration.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20), // 0.1ms ~ 52s
			}, []string{LblStage}),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbkernel",
				Subsystem: "pipeline",
				Name:      "stage_errors_total",
				Help:      "Counter of failed pipeline stages.",
			}, []string{LblStage}),
		RouteUnits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dbkernel",
				Subsystem: "route",
				Name:      "units",
				Help:      "Bucketed histogram of route units per statement.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 ~ 512
			}),
	}
	for _, c := range []prometheus.Collector{m.Requests, m.StageDuration, m.StageErrors, m.RouteUnits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveStage 记录一个阶段的耗时，err 不为 nil 的时候同时计数
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveRequest(kind string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Requests.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveRouteUnits(n int) {
	if m == nil {
		return
	}
	m.RouteUnits.Observe(float64(n))
}
