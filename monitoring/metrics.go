package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics Prometheus指标集合
type Metrics struct {
	registry *prometheus.Registry

	Predictions     *prometheus.CounterVec
	ModelLoads      *prometheus.CounterVec
	ModelLoaded     *prometheus.GaugeVec
	CacheLookups    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ValidationFails *prometheus.CounterVec
}

// NewMetrics 创建并注册所有指标。每个实例使用独立的registry，便于测试
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:        prometheus.NewPedanticRegistry(),
		Predictions:     newCounterVec("predictions_total", "predictions served", "model", "fallback"),
		ModelLoads:      newCounterVec("model_loads_total", "model artifact load attempts", "model", "result"),
		ModelLoaded:     newGaugeVec("model_loaded", "1 when a trained artifact is active", "model"),
		CacheLookups:    newCounterVec("prediction_cache_lookups_total", "prediction cache lookups", "model", "result"),
		ValidationFails: newCounterVec("validation_failures_total", "requests rejected by the feature builder", "model"),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "http request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(m.Predictions, m.ModelLoads, m.ModelLoaded, m.CacheLookups, m.ValidationFails, m.RequestDuration)
	return m
}

// Handler 返回/metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePrediction 记录一次预测
func (m *Metrics) ObservePrediction(model string, fallback bool) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(model, strconv.FormatBool(fallback)).Inc()
}

// ObserveLoad 记录一次模型加载。active表示加载后是否有训练模型在服务，
// 失败的重载不会让仍在使用的旧模型显示为未加载
func (m *Metrics) ObserveLoad(model string, ok, active bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	value := 0.0
	if active {
		value = 1
	}
	m.ModelLoads.WithLabelValues(model, result).Inc()
	m.ModelLoaded.WithLabelValues(model).Set(value)
}

// ObserveCache 记录缓存命中情况
func (m *Metrics) ObserveCache(model string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(model, result).Inc()
}

// ObserveValidationFailure 记录校验失败
func (m *Metrics) ObserveValidationFailure(model string) {
	if m == nil {
		return
	}
	m.ValidationFails.WithLabelValues(model).Inc()
}

// ObserveRequest 记录HTTP请求耗时
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)
}
