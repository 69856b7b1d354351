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

package debug

import (
	"github.com/arl/statsviz"
	dto "github.com/prometheus/client_model/go"

	"github.com/pgfetch/pgfetch/internal/util/lazyerrors"
)

// plotter builds statsviz plots from Prometheus metrics.
type plotter struct {
	g *gatherer
}

// newPlotter returns a new plotter over the given gatherer.
func newPlotter(g *gatherer) *plotter {
	return &plotter{
		g: g,
	}
}

// plots returns a plot for every metric family that has exactly one series without labels.
// Labeled and multi-series families are skipped; statsviz requires one value per plot.
func (p *plotter) plots() ([]statsviz.TimeSeriesPlot, error) {
	families, err := p.g.Gather()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	var res []statsviz.TimeSeriesPlot

	for _, mf := range families {
		t := mf.GetType()
		if t != dto.MetricType_GAUGE && t != dto.MetricType_COUNTER {
			continue
		}

		if len(mf.Metric) != 1 || len(mf.Metric[0].GetLabel()) != 0 {
			continue
		}

		plot, err := statsviz.TimeSeriesPlotConfig{
			Name:  mf.GetName(),
			Title: mf.GetHelp(),
			Type:  statsviz.Scatter,
			Series: []statsviz.TimeSeries{{
				Name:     mf.GetName(),
				Unitfmt:  "%{y:.4s}",
				GetValue: p.value(mf.GetName(), t),
			}},
		}.Build()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		res = append(res, plot)
	}

	return res, nil
}

// value returns a function that extracts the current value of the named metric.
// The gatherer caches results, so frequent calls are cheap.
func (p *plotter) value(name string, t dto.MetricType) func() float64 {
	return func() float64 {
		families, err := p.g.Gather()
		if err != nil {
			return 0
		}

		for _, mf := range families {
			if mf.GetName() != name || len(mf.Metric) != 1 {
				continue
			}

			m := mf.Metric[0]

			switch t {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			default:
				return 0
			}
		}

		return 0
	}
}
