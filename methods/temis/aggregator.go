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

// Package temis estimates emissions from the TROPOMI NO2 monthly mean
// columns published by TEMIS (www.temis.nl) in the TOMS grid format.
package temis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/eocalc"
)

// Source makes the monthly mean file for the month of day available
// locally and returns its path. *Provider is a Source.
type Source interface {
	Ensure(ctx context.Context, day time.Time) (string, error)
}

// MonthlyMeanAggregator estimates emissions by spreading the monthly
// mean tropospheric column of each grid cell over the days of the
// period. The TEMIS values are taken at face value: no correction is
// made for atmospheric lifetime or diurnal variation.
type MonthlyMeanAggregator struct {
	eocalc.State

	Source  Source
	Log     logrus.FieldLogger
	Metrics *Metrics
}

// NewMonthlyMeanAggregator returns a calculator reading data from s.
func NewMonthlyMeanAggregator(s Source) *MonthlyMeanAggregator {
	return &MonthlyMeanAggregator{
		Source:  s,
		Log:     logrus.StandardLogger(),
		Metrics: newMetrics(),
	}
}

var coverage = eocalc.NewRegion(geom.Polygon{{
	{X: -180, Y: -60}, {X: 180, Y: -60}, {X: 180, Y: 60}, {X: -180, Y: 60}, {X: -180, Y: -60},
}})

var earliestStart = time.Date(2018, time.February, 1, 0, 0, 0, 0, time.UTC)

// MinimumAreaSize implements eocalc.Limits.
func (*MonthlyMeanAggregator) MinimumAreaSize() float64 { return 1.0e4 }

// MinimumPeriodLength implements eocalc.Limits.
func (*MonthlyMeanAggregator) MinimumPeriodLength() int { return 1 }

// EarliestStartDate implements eocalc.Limits.
func (*MonthlyMeanAggregator) EarliestStartDate() time.Time { return earliestStart }

// LatestEndDate returns the last day of the month before the previous
// month, the newest month TEMIS reliably publishes.
func (*MonthlyMeanAggregator) LatestEndDate() time.Time {
	now := clock.Now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := firstOfMonth.AddDate(0, 0, -1)
	return time.Date(prev.Year(), prev.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// Coverage implements eocalc.Limits.
func (*MonthlyMeanAggregator) Coverage() *eocalc.Region { return coverage }

// Supports implements eocalc.Limits. Only NO2 is available.
func (*MonthlyMeanAggregator) Supports(p eocalc.Pollutant) bool { return p == eocalc.NO2 }

// Run implements eocalc.Calculator.
func (m *MonthlyMeanAggregator) Run(ctx context.Context, region *eocalc.Region, period eocalc.DateRange, pollutant eocalc.Pollutant) (*eocalc.Result, error) {
	if err := eocalc.Validate(m, region, period, pollutant); err != nil {
		return nil, err
	}
	m.Start()
	defer m.Finish()

	start := clock.Now()
	res, err := m.run(ctx, region, period, pollutant)
	if err != nil {
		m.log().WithError(err).WithField("period", period.String()).Error("TEMIS calculation failed")
		return nil, err
	}
	m.metrics().RunDuration.Observe(clock.Since(start).Seconds())
	return res, nil
}

func (m *MonthlyMeanAggregator) run(ctx context.Context, region *eocalc.Region, period eocalc.DateRange, pollutant eocalc.Pollutant) (*eocalc.Result, error) {
	log := m.log().WithFields(logrus.Fields{
		"period":    period.String(),
		"pollutant": pollutant.String(),
	})
	b := region.Bounds()
	grid, err := eocalc.NewGrid(b, BinWidth, BinWidth, true, true)
	if err != nil {
		return nil, err
	}
	factor, err := ConversionFactor(pollutant)
	if err != nil {
		return nil, err
	}
	log.WithField("cells", grid.Len()).Info("calculating emissions from TEMIS monthly means")

	// Values are [kg/km²] for each day and grid cell.
	days := period.Days()
	months := make(map[string][]float64)
	daily := make([][]float64, len(days))
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := day.Format("2006-01")
		v, ok := months[key]
		if !ok {
			v, err = m.loadMonth(ctx, day, b, factor, grid.Len())
			if err != nil {
				return nil, err
			}
			months[key] = v
			log.WithField("month", key).Debug("month loaded")
		}
		daily[i] = v
		m.Progress(80 * (i + 1) / len(days))
	}

	ct, err := eocalc.EqualAreaTransform(b)
	if err != nil {
		return nil, err
	}
	table := &eocalc.GridTable{Pollutant: pollutant, Days: days}
	uncertainties := make([]float64, len(days))
	for i := range uncertainties {
		uncertainties[i] = CellUncertainty
	}
	// Within a single month the daily values of a cell are all the same,
	// so the uncertainty only depends on the number of values.
	memo := make(map[int]float64)
	singleMonth := len(months) == 1
	cells := grid.Clip(region)
	for n, c := range cells {
		area, err := eocalc.ProjectedArea(c.Polygonal, ct)
		if err != nil {
			return nil, err
		}
		row := &eocalc.GridRow{
			GridCell: c,
			Area:     area,
			Values:   len(days),
			Daily:    make([]float64, len(days)),
		}
		idx := c.Row*grid.Nx + c.Col
		for i := range days {
			row.Daily[i] = daily[i][idx] * area
			if math.IsNaN(row.Daily[i]) {
				row.Missing++
			} else {
				row.Total += row.Daily[i]
			}
		}
		count := row.Values - row.Missing
		u, ok := memo[count]
		if !ok || !singleMonth || row.Total == 0 {
			u, err = eocalc.CombineUncertainties(row.Daily, uncertainties)
			if err != nil {
				return nil, err
			}
			if singleMonth && row.Total != 0 {
				memo[count] = u
			}
		}
		row.Umin, row.Umax = u, u
		table.Rows = append(table.Rows, row)
		m.Progress(80 + 20*(n+1)/len(cells))
	}

	totals := make([]float64, len(table.Rows))
	umin := make([]float64, len(table.Rows))
	for i, r := range table.Rows {
		totals[i], umin[i] = r.Total, r.Umin
	}
	u, err := eocalc.CombineUncertainties(totals, umin)
	if err != nil {
		return nil, err
	}
	sectors := eocalc.NewSectorTable(pollutant)
	sectors.Set(eocalc.Totals, eocalc.SectorRow{Emissions: table.Total() / 1.0e6, Umin: u, Umax: u})
	log.WithField("total_kt", sectors.Totals().Emissions).Info("TEMIS calculation finished")
	return &eocalc.Result{Totals: sectors, Grid: table}, nil
}

// loadMonth returns the emissions [kg/km²] of each grid cell for the
// month of day.
func (m *MonthlyMeanAggregator) loadMonth(ctx context.Context, day time.Time, b *geom.Bounds, factor float64, cells int) ([]float64, error) {
	path, err := m.Source.Ensure(ctx, day)
	if err != nil {
		return nil, err
	}
	v, err := ReadTOMSFile(path, b)
	if err != nil {
		return nil, err
	}
	if len(v) != cells {
		return nil, fmt.Errorf("temis: %s holds %d values for the region, the grid has %d cells", path, len(v), cells)
	}
	for i := range v {
		v[i] *= factor
	}
	m.metrics().MonthsLoaded.Inc()
	return v, nil
}

// ConversionFactor returns the factor converting a TEMIS tropospheric
// column [10¹³ molecules/cm²] of pollutant p into an areal mass
// [kg/km²].
func ConversionFactor(p eocalc.Pollutant) (float64, error) {
	grams, ok := p.MolarMass()
	if !ok {
		return math.NaN(), fmt.Errorf("temis: no molar mass for %s", p)
	}
	column := unit.New(1.0e13/1.0e-4, unit.Dimensions{unit.LengthDim: -2}) // molecules/m²
	avogadro := unit.New(6.022e23, unit.Dimensions{})                      // molecules/mol
	molarMass := unit.New(grams/1000, unit.Dimensions{unit.MassDim: 1})   // kg/mol
	density := unit.Div(unit.Mul(column, molarMass), avogadro)
	if err := density.Check(unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -2}); err != nil {
		return math.NaN(), fmt.Errorf("temis: %w", err)
	}
	const m2PerKm2 = 1.0e6
	return density.Value() * m2PerKm2, nil
}

func (m *MonthlyMeanAggregator) log() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}

func (m *MonthlyMeanAggregator) metrics() *Metrics {
	if m.Metrics == nil {
		return noMetrics
	}
	return m.Metrics
}

var noMetrics = newMetrics()
