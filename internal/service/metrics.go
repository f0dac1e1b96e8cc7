package service

import "time"

// Metrics is the slice of observability.Prom the services report into.
type Metrics interface {
	ObserveCrypto(op string, err error)
	ObserveMail(result string, took time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCrypto(string, error)       {}
func (nopMetrics) ObserveMail(string, time.Duration) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
