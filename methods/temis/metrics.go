/*
Copyright © 2021 the EOCalc authors.
This file is part of EOCalc.

EOCalc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EOCalc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EOCalc.  If not, see <http://www.gnu.org/licenses/>.
*/

package temis

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eocalc_temis"

// Metrics holds the Prometheus counters and histograms for TEMIS data
// retrieval and aggregation.
type Metrics struct {
	// Downloads counts remote fetches by outcome={success,error}.
	Downloads *prometheus.CounterVec
	// LocalFiles counts requests that were served from the data directory.
	LocalFiles prometheus.Counter
	// Decompressions counts gzip layers removed from downloaded files.
	Decompressions prometheus.Counter
	// MonthsLoaded counts monthly files read during runs.
	MonthsLoaded prometheus.Counter
	// RunDuration is the duration of successful runs.
	RunDuration prometheus.Histogram
}

// NewMetrics creates and registers all TEMIS metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Downloads,
		m.LocalFiles,
		m.Decompressions,
		m.MonthsLoaded,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Remote TEMIS file fetches by outcome.",
		}, []string{"outcome"}),
		LocalFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_files_total",
			Help:      "Requests served from files already in the data directory.",
		}),
		Decompressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decompressions_total",
			Help:      "Gzip layers removed from downloaded files.",
		}),
		MonthsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "months_loaded_total",
			Help:      "Monthly mean files read during runs.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of successful emission calculations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}
