// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shirow"

// Call outcomes used as metric label values.
const (
	OutcomeFinal       = "final"
	OutcomeError       = "error"
	OutcomePending     = "pending"
	OutcomeFailure     = "failure"
	OutcomeUndefined   = "undefined"
	OutcomeArity       = "arity_mismatch"
	OutcomeRateLimited = "rate_limited"
	OutcomeMalformed   = "malformed"
)

// Frame kinds used as metric label values.
const (
	FrameContinue = "continue"
	FrameFinal    = "final"
	FrameError    = "error"
)

type Metrics struct {
	admissions   *prometheus.CounterVec
	connections  prometheus.Gauge
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	frames       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Connection attempts by resulting HTTP status.",
		}, []string{"status"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently admitted and open.",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Procedure calls by outcome.",
		}, []string{"outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent in registered procedures.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Response frames sent by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(m.admissions, m.connections, m.calls, m.callDuration, m.frames)
	}

	return m
}

func (m *Metrics) Admission(status int) {
	m.admissions.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Dec()
}

func (m *Metrics) Call(outcome string) {
	m.calls.WithLabelValues(outcome).Inc()
}

// CallDuration is only recorded for registered procedures
// so that label cardinality stays bounded.
func (m *Metrics) CallDuration(procedure string, d time.Duration) {
	m.callDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

func (m *Metrics) Frame(kind string) {
	m.frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) AdmissionsCounter() *prometheus.CounterVec { return m.admissions }
func (m *Metrics) CallsCounter() *prometheus.CounterVec      { return m.calls }
func (m *Metrics) FramesCounter() *prometheus.CounterVec     { return m.frames }
func (m *Metrics) ConnectionsGauge() prometheus.Gauge        { return m.connections }
