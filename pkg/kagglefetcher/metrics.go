// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records fetch step outcomes. A nil *Metrics records nothing.
type Metrics struct {
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	downloadedBytes prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kagglefetcher",
				Name:      "steps_total",
				Help:      "Fetch steps by step and result",
			},
			[]string{"step", "result"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kagglefetcher",
				Name:      "step_duration_seconds",
				Help:      "Duration of fetch steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"step"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kagglefetcher",
				Name:      "downloaded_bytes_total",
				Help:      "Bytes received from the dataset download endpoint",
			},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.stepsTotal, m.stepDuration, m.downloadedBytes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// observe records one step outcome.
func (m *Metrics) observe(step string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.stepsTotal.WithLabelValues(step, result).Inc()
	m.stepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func (m *Metrics) addBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadedBytes.Add(float64(n))
}
