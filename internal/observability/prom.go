package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// vault + mail
	CryptoOpsTotal *prometheus.CounterVec
	MailResults    *prometheus.CounterVec
	MailDuration   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewProm registers the collectors on a fresh registry so tests can build
// as many routers as they like.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := newProm(reg)
	p.gatherer = reg
	return p
}

func newProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "securedata",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "securedata",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "securedata",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "securedata",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "securedata",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		CryptoOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "securedata",
				Subsystem: "vault",
				Name:      "crypto_ops_total",
				Help:      "Encrypt/decrypt/sign/verify operations by result.",
			},
			[]string{"op", "result"},
		),
		MailResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "securedata",
				Subsystem: "mail",
				Name:      "results_total",
				Help:      "Signed email deliveries by result.",
			},
			[]string{"result"}, // result=sent|failed|circuit_open
		),
		MailDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "securedata",
				Subsystem: "mail",
				Name:      "send_duration_seconds",
				Help:      "Time spent delivering a signed email, retries included.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
	}
	reg.MustRegister(p.RequestsTotal, p.RequestsDuration, p.InFlight, p.DbQueryDuration, p.DbErrorsTotal, p.CryptoOpsTotal, p.MailResults, p.MailDuration)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prom) ObserveCrypto(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.CryptoOpsTotal.WithLabelValues(op, result).Inc()
}

func (p *Prom) ObserveMail(result string, took time.Duration) {
	p.MailResults.WithLabelValues(result).Inc()
	p.MailDuration.Observe(took.Seconds())
}
