// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics exposes the monitor's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posture"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SamplesProcessed   prometheus.Counter
	InvalidSamples     prometheus.Counter
	DeviationsEntered  prometheus.Counter
	FeedbackEmitted    *prometheus.CounterVec
	FeedbackSuppressed *prometheus.CounterVec
	PostureScore       prometheus.Gauge
	SessionsCompleted  *prometheus.CounterVec
	Calibrations       *prometheus.CounterVec

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_processed_total",
			Help:      "Orientation samples accepted by the engine",
		}),
		InvalidSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_invalid_total",
			Help:      "Samples rejected for non-finite angles",
		}),
		DeviationsEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deviations_total",
			Help:      "Normal to deviating transitions",
		}),
		FeedbackEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_emitted_total",
			Help:      "Feedback events handed to the audio sink",
		}, []string{"level"}),
		FeedbackSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_suppressed_total",
			Help:      "Feedback decisions that did not emit",
		}, []string{"reason"}),
		PostureScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Rolling posture score over the recent window",
		}),
		SessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions ended, by grade",
		}, []string{"grade"}),
		Calibrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calibrations_total",
			Help:      "Calibration attempts, by outcome",
		}, []string{"result"}),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "endpoint"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SamplesProcessed,
			m.InvalidSamples,
			m.DeviationsEntered,
			m.FeedbackEmitted,
			m.FeedbackSuppressed,
			m.PostureScore,
			m.SessionsCompleted,
			m.Calibrations,
			m.RequestCounter,
			m.RequestDuration,
		)
	}
	return m
}

// Sample counts a posture the engine accepted, whether or not monitoring was on.
func (m *Metrics) Sample() {
	if m == nil {
		return
	}
	m.SamplesProcessed.Inc()
}

func (m *Metrics) Score(score float64) {
	if m == nil {
		return
	}
	m.PostureScore.Set(score)
}

func (m *Metrics) Invalid() {
	if m == nil {
		return
	}
	m.InvalidSamples.Inc()
}

func (m *Metrics) Deviation() {
	if m == nil {
		return
	}
	m.DeviationsEntered.Inc()
}

func (m *Metrics) Emitted(level string) {
	if m == nil {
		return
	}
	m.FeedbackEmitted.WithLabelValues(level).Inc()
}

func (m *Metrics) Suppressed(reason string) {
	if m == nil {
		return
	}
	m.FeedbackSuppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionCompleted(grade string) {
	if m == nil {
		return
	}
	m.SessionsCompleted.WithLabelValues(grade).Inc()
}

func (m *Metrics) Calibration(result string) {
	if m == nil {
		return
	}
	m.Calibrations.WithLabelValues(result).Inc()
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus text format.
func Handler(g prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
