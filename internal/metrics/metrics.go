// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmbridge_invocations_total",
			Help: "Total tool invocations by tool name and outcome",
		},
		[]string{"tool", "status"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmbridge_invocation_duration_seconds",
			Help:    "Tool invocation latency including the remote call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmbridge_logins_total",
			Help: "Total Data API login attempts by outcome",
		},
		[]string{"status"},
	)

	discoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmbridge_discovery_runs_total",
			Help: "Total catalog discovery passes by outcome",
		},
		[]string{"status"},
	)

	registryTools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmbridge_registry_tools",
			Help: "Number of tools in the current registry snapshot",
		},
	)
)

// Outcome labels shared by the counters above.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RecordInvocation records one tool invocation outcome and its latency.
// status should be a bridge error code, or StatusOK on success.
func RecordInvocation(tool, status string, duration time.Duration) {
	invocations.WithLabelValues(tool, status).Inc()
	invocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordLogin records one login attempt outcome.
func RecordLogin(status string) {
	logins.WithLabelValues(status).Inc()
}

// RecordDiscovery records one discovery pass outcome.
func RecordDiscovery(status string) {
	discoveryRuns.WithLabelValues(status).Inc()
}

// SetRegistrySize records the tool count of the live registry snapshot.
func SetRegistrySize(n int) {
	registryTools.Set(float64(n))
}
