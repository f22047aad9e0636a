// Package observability 提供调度核心的 Prometheus 指标。
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banana_dispatch_total",
			Help: "Total provider dispatches by outcome.",
		},
		[]string{"provider", "outcome"},
	)
	generateAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banana_generate_attempts_total",
			Help: "Total generation attempts against upstream APIs.",
		},
		[]string{"provider", "outcome"},
	)
	generateAttemptDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "banana_generate_attempt_duration_seconds",
			Help:    "Generation attempt duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
	keyRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banana_key_rotations_total",
			Help: "Total API key rotations during retry loops.",
		},
		[]string{"provider"},
	)
	imageDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banana_image_downloads_total",
			Help: "Total reference image downloads by outcome.",
		},
		[]string{"outcome"},
	)
	recaptchaExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "banana_recaptcha_exchanges_total",
			Help: "Total reCAPTCHA token exchanges by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		dispatchTotal,
		generateAttemptsTotal,
		generateAttemptDurationSeconds,
		keyRotationsTotal,
		imageDownloadsTotal,
		recaptchaExchangesTotal,
	)
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveDispatch 记录一次对某提供商的调度结果。
func ObserveDispatch(provider string, ok bool) {
	if provider == "" {
		provider = "unknown"
	}
	dispatchTotal.WithLabelValues(provider, outcomeLabel(ok)).Inc()
}

// ObserveGenerateAttempt 记录一次生成请求的结果与耗时。
func ObserveGenerateAttempt(provider string, d time.Duration, ok bool) {
	if provider == "" {
		provider = "unknown"
	}
	generateAttemptsTotal.WithLabelValues(provider, outcomeLabel(ok)).Inc()
	if d > 0 {
		generateAttemptDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveKeyRotation 记录一次 Key 轮换。
func ObserveKeyRotation(provider string) {
	if provider == "" {
		provider = "unknown"
	}
	keyRotationsTotal.WithLabelValues(provider).Inc()
}

// ObserveDownload 记录一次参考图片下载结果。
func ObserveDownload(ok bool) {
	imageDownloadsTotal.WithLabelValues(outcomeLabel(ok)).Inc()
}

// ObserveRecaptchaExchange 记录一次 reCAPTCHA token 交换结果。
func ObserveRecaptchaExchange(ok bool) {
	recaptchaExchangesTotal.WithLabelValues(outcomeLabel(ok)).Inc()
}
