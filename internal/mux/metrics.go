// Copyright 2024 The pgfetch Authors
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

package mux

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "pgfetch"
	subsystem = "mux"
)

// Describe implements prometheus.Collector.
func (m *Mux) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, ch)
}

// Collect implements prometheus.Collector.
func (m *Mux) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "in_flight"),
			"The current number of in-flight requests.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(m.InFlight()),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "dispatched_total"),
			"Total number of dispatched requests.",
			nil, nil,
		),
		prometheus.CounterValue,
		float64(m.dispatched.Load()),
	)

	completed := prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "completed_total"),
		"Total number of completed requests, partitioned by final state.",
		[]string{"state"}, nil,
	)

	for _, s := range []struct {
		state State
		count int64
	}{
		{StateResolved, m.resolved.Load()},
		{StateTimedOut, m.timedOut.Load()},
		{StateCancelled, m.cancelled.Load()},
	} {
		ch <- prometheus.MustNewConstMetric(
			completed,
			prometheus.CounterValue,
			float64(s.count),
			s.state.String(),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "dropped_responses_total"),
			"Total number of responses that arrived after their request was abandoned.",
			nil, nil,
		),
		prometheus.CounterValue,
		float64(m.dropped.Load()),
	)
}

// check interfaces
var (
	_ prometheus.Collector = (*Mux)(nil)
)
