// Copyright (c) 2026 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics records login outcomes in a Prometheus registry. A one-shot
// command has nothing to scrape, so the registry is written to a file for
// the node-exporter textfile collector instead of being served.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "srun"

// Result labels.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Registry struct {
	*prometheus.Registry
	Name string
}

func NewRegistry(name string) *Registry {
	return &Registry{
		Registry: prometheus.NewRegistry(),
		Name:     name,
	}
}

// Recorder owns the collectors. A nil *Recorder discards everything.
type Recorder struct {
	registry   *Registry
	attempts   *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	online     *prometheus.GaugeVec
	bytesIn    *prometheus.GaugeVec
	bytesOut   *prometheus.GaugeVec
	seconds    *prometheus.GaugeVec
	lastRun    prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: NewRegistry(namespace),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"user", "result"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed status, login and logout operations by result.",
		}, []string{"user", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of status, login and logout operations.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "Whether the gateway reported the user as online.",
		}, []string{"user"}),
		bytesIn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_in",
			Help:      "Bytes received in the current session.",
		}, []string{"user"}),
		bytesOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_out",
			Help:      "Bytes sent in the current session.",
		}, []string{"user"}),
		seconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sum_seconds",
			Help:      "Accumulated online time reported by the gateway.",
		}, []string{"user"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last run.",
		}),
	}

	r.registry.MustRegister(r.attempts, r.operations, r.duration, r.online,
		r.bytesIn, r.bytesOut, r.seconds, r.lastRun)

	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *Registry {
	return r.registry
}

// LoginAttempt counts a single login attempt.
func (r *Recorder) LoginAttempt(user, result string) {
	if r == nil {
		return
	}

	r.attempts.WithLabelValues(user, result).Inc()
}

// Operation records a finished operation. A nil err counts as success.
func (r *Recorder) Operation(user, operation string, d time.Duration, err error) {
	if r == nil {
		return
	}

	result := ResultSuccess
	if err != nil {
		result = ResultError
	}

	r.operations.WithLabelValues(user, operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Status records the session counters reported by the gateway.
func (r *Recorder) Status(user string, online bool, bytesIn, bytesOut uint64, sumSeconds int64) {
	if r == nil {
		return
	}

	v := 0.0
	if online {
		v = 1
	}

	r.online.WithLabelValues(user).Set(v)
	r.bytesIn.WithLabelValues(user).Set(float64(bytesIn))
	r.bytesOut.WithLabelValues(user).Set(float64(bytesOut))
	r.seconds.WithLabelValues(user).Set(float64(sumSeconds))
}

// WriteTextfile stamps the run time and writes the registry to path.
func (r *Recorder) WriteTextfile(path string, now time.Time) error {
	if r == nil {
		return errors.New("metrics are disabled")
	}

	r.lastRun.Set(float64(now.Unix()))

	return prometheus.WriteToTextfile(path, r.registry)
}
