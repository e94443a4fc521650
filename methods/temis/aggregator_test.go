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
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spatialmodel/eocalc"
)

// testRegion is aligned with the data grid and covers four latitude
// bands and twenty longitude columns of the test data.
var testRegion = eocalc.NewRegion(geom.Polygon{{
	{X: -123.5, Y: 37.125}, {X: -121, Y: 37.125}, {X: -121, Y: 37.625},
	{X: -123.5, Y: 37.625}, {X: -123.5, Y: 37.125},
}})

func similar(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b))
}

func testAggregator() *MonthlyMeanAggregator {
	p := testProvider("testdata", "http://localhost:1")
	m := NewMonthlyMeanAggregator(p)
	m.Metrics = NewMetricsForTesting()
	return m
}

func findRow(t *testing.T, tb *eocalc.GridTable, row, col int) *eocalc.GridRow {
	for _, r := range tb.Rows {
		if r.Row == row && r.Col == col {
			return r
		}
	}
	t.Fatalf("no row for cell (%d, %d)", row, col)
	return nil
}

func TestConversionFactor(t *testing.T) {
	f, err := ConversionFactor(eocalc.NO2)
	if err != nil {
		t.Fatal(err)
	}
	want := 1.0e13 / 6.022e23 * 46.01 / 1000 * 1.0e10
	if !similar(f, want, 1.0e-12) {
		t.Errorf("have %g, want %g", f, want)
	}
	if _, err := ConversionFactor(eocalc.PM2_5); err == nil {
		t.Error("PM2.5 has no molar mass")
	}
}

func TestLimits(t *testing.T) {
	m := testAggregator()
	if m.MinimumAreaSize() != 1.0e4 || m.MinimumPeriodLength() != 1 {
		t.Errorf("area %g, period %d", m.MinimumAreaSize(), m.MinimumPeriodLength())
	}
	if want := time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC); !m.EarliestStartDate().Equal(want) {
		t.Errorf("earliest start: %v", m.EarliestStartDate())
	}
	for _, p := range eocalc.Pollutants() {
		if m.Supports(p) != (p == eocalc.NO2) {
			t.Errorf("%s: supported %v", p, m.Supports(p))
		}
	}
	if !eocalc.Covers(m, testRegion) {
		t.Error("test region should be covered")
	}
	arctic := eocalc.NewRegion(geom.Polygon{{{X: 0, Y: 70}, {X: 10, Y: 70}, {X: 10, Y: 75}, {X: 0, Y: 75}, {X: 0, Y: 70}}})
	if eocalc.Covers(m, arctic) {
		t.Error("arctic should not be covered")
	}
}

func TestLatestEndDate(t *testing.T) {
	defer SetClock(nil)
	tests := []struct {
		today, want time.Time
	}{
		{today: time.Date(2021, 4, 19, 12, 0, 0, 0, time.UTC), want: time.Date(2021, 2, 28, 0, 0, 0, 0, time.UTC)},
		{today: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), want: time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)},
		{today: time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC), want: time.Date(2020, 11, 30, 0, 0, 0, 0, time.UTC)},
		{today: time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC), want: time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	m := testAggregator()
	for _, test := range tests {
		t.Run(test.today.Format("2006-01-02"), func(t *testing.T) {
			SetClock(clockwork.NewFakeClockAt(test.today))
			if have := m.LatestEndDate(); !have.Equal(test.want) {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	m := testAggregator()
	period := eocalc.MustDateRange("2019-01-01", "2019-01-03")
	res, err := m.Run(context.Background(), testRegion, period, eocalc.NO2)
	if err != nil {
		t.Fatal(err)
	}
	if s, p := m.Status(); s != eocalc.Ready || p != 0 {
		t.Errorf("status after run: %s %d", s, p)
	}
	grid := res.Grid
	if grid.Len() != 80 {
		t.Fatalf("have %d cells, want 80", grid.Len())
	}
	if len(grid.Columns()) != 9 {
		t.Errorf("have %d columns, want 9", len(grid.Columns()))
	}

	f, _ := ConversionFactor(eocalc.NO2)
	area := 0.
	for _, r := range grid.Rows {
		area += r.Area
		if r.Values != 3 {
			t.Errorf("cell (%d, %d): %d values", r.Row, r.Col, r.Values)
		}
	}
	regionArea, err := testRegion.Area()
	if err != nil {
		t.Fatal(err)
	}
	if !similar(area, regionArea, 1.0e-6) {
		t.Errorf("cell areas sum to %g km², region is %g km²", area, regionArea)
	}

	t.Run("cell", func(t *testing.T) {
		r := findRow(t, grid, 0, 10)
		if r.CenterLon != -122.1875 || r.CenterLat != 37.1875 {
			t.Errorf("center: (%g, %g)", r.CenterLon, r.CenterLat)
		}
		want := 133 * f * r.Area
		for i, v := range r.Daily {
			if !similar(v, want, 1.0e-12) {
				t.Errorf("day %d: have %g, want %g", i, v, want)
			}
		}
		if !similar(r.Total, 3*want, 1.0e-12) {
			t.Errorf("total: have %g, want %g", r.Total, 3*want)
		}
		if u := 1000 / math.Sqrt(3); !similar(r.Umin, u, 1.0e-12) || r.Umax != r.Umin {
			t.Errorf("uncertainty: have %g/%g, want %g", r.Umin, r.Umax, u)
		}
		if r.Missing != 0 {
			t.Errorf("missing: %d", r.Missing)
		}
	})

	t.Run("missing", func(t *testing.T) {
		r := findRow(t, grid, 3, 10)
		if r.Missing != 3 || r.Total != 0 || r.Umin != 0 {
			t.Errorf("have missing %d, total %g, uncertainty %g", r.Missing, r.Total, r.Umin)
		}
		for _, v := range r.Daily {
			if !math.IsNaN(v) {
				t.Errorf("daily value should be missing: %g", v)
			}
		}
	})

	t.Run("totals", func(t *testing.T) {
		totals := res.Totals.Totals()
		if !similar(totals.Emissions, grid.Total()/1.0e6, 1.0e-12) {
			t.Errorf("have %g kt, want %g kt", totals.Emissions, grid.Total()/1.0e6)
		}
		v := make([]float64, grid.Len())
		u := make([]float64, grid.Len())
		for i, r := range grid.Rows {
			v[i], u[i] = r.Total, r.Umin
		}
		want, err := eocalc.CombineUncertainties(v, u)
		if err != nil {
			t.Fatal(err)
		}
		if !similar(totals.Umin, want, 1.0e-12) || totals.Umax != totals.Umin {
			t.Errorf("uncertainty: have %g/%g, want %g", totals.Umin, totals.Umax, want)
		}
		// Reference values computed independently from the fixture data,
		// the NO2 conversion factor and the cell areas on the WGS84
		// ellipsoid. The band covers the error of the projected areas.
		const (
			wantKt = 0.008266708031280129
			wantU  = 157.5237154747572
			band   = 1.0e-5
		)
		if !similar(totals.Emissions, wantKt, band) {
			t.Errorf("reference totals: have %g kt, want %g kt", totals.Emissions, wantKt)
		}
		if !similar(totals.Umin, wantU, band) || !similar(totals.Umax, wantU, band) {
			t.Errorf("reference uncertainty: have %g/%g %%, want %g %%", totals.Umin, totals.Umax, wantU)
		}
		for _, s := range eocalc.Sectors() {
			if !math.IsNaN(res.Totals.Get(s).Emissions) {
				t.Errorf("sector %s should not be estimated", s)
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		res2, err := m.Run(context.Background(), testRegion, period, eocalc.NO2)
		if err != nil {
			t.Fatal(err)
		}
		if res2.Totals.Totals() != res.Totals.Totals() {
			t.Errorf("have %+v, want %+v", res2.Totals.Totals(), res.Totals.Totals())
		}
	})

	if v := testutil.ToFloat64(m.Metrics.MonthsLoaded); v != 2 {
		t.Errorf("months loaded: have %g, want 2", v)
	}
}

func TestRunAcrossMonths(t *testing.T) {
	m := testAggregator()
	period := eocalc.MustDateRange("2019-01-31", "2019-02-01")
	res, err := m.Run(context.Background(), testRegion, period, eocalc.NO2)
	if err != nil {
		t.Fatal(err)
	}
	f, _ := ConversionFactor(eocalc.NO2)
	r := findRow(t, res.Grid, 0, 10)
	if !similar(r.Daily[0], 133*f*r.Area, 1.0e-12) || !similar(r.Daily[1], 266*f*r.Area, 1.0e-12) {
		t.Errorf("daily values: %v", r.Daily)
	}
	if u := 1000 * math.Sqrt(5) / 3; !similar(r.Umin, u, 1.0e-12) {
		t.Errorf("uncertainty: have %g, want %g", r.Umin, u)
	}
	if cols := res.Grid.Columns(); cols[len(cols)-1] != "2019-02-01 NO2 emissions [kg]" {
		t.Errorf("last column: %s", cols[len(cols)-1])
	}
}

func TestRunEdgesOffDataGrid(t *testing.T) {
	const e = 1.0e-11
	region := eocalc.NewRegion(geom.Polygon{{
		{X: -123.5 - e, Y: 37.125 - e}, {X: -121 + e, Y: 37.125 - e}, {X: -121 + e, Y: 37.625 + e},
		{X: -123.5 - e, Y: 37.625 + e}, {X: -123.5 - e, Y: 37.125 - e},
	}})
	m := testAggregator()
	res, err := m.Run(context.Background(), region, eocalc.MustDateRange("2019-01-01", "2019-01-01"), eocalc.NO2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Grid.Len() != 80 {
		t.Fatalf("have %d cells, want 80", res.Grid.Len())
	}
	f, _ := ConversionFactor(eocalc.NO2)
	r := findRow(t, res.Grid, 0, 10)
	if !similar(r.Daily[0], 133*f*r.Area, 1.0e-12) {
		t.Errorf("cell (0, 10): have %g, want %g", r.Daily[0], 133*f*r.Area)
	}
}

type statusSource struct {
	m      *MonthlyMeanAggregator
	status eocalc.Status
	err    error
}

func (s *statusSource) Ensure(ctx context.Context, day time.Time) (string, error) {
	s.status, _ = s.m.Status()
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("testdata/no2_%s.asc", day.Format("200601")), nil
}

func TestRunStatus(t *testing.T) {
	m := testAggregator()
	s := &statusSource{m: m}
	m.Source = s
	if _, err := m.Run(context.Background(), testRegion, eocalc.MustDateRange("2019-01-01", "2019-01-01"), eocalc.NO2); err != nil {
		t.Fatal(err)
	}
	if s.status != eocalc.Running {
		t.Errorf("status during run: %s", s.status)
	}
}

func TestRunUnavailable(t *testing.T) {
	m := testAggregator()
	m.Source = &statusSource{m: m, err: fmt.Errorf("%w: offline", ErrDataUnavailable)}
	_, err := m.Run(context.Background(), testRegion, eocalc.MustDateRange("2019-01-01", "2019-01-05"), eocalc.NO2)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("want ErrDataUnavailable, have %v", err)
	}
	if s, p := m.Status(); s != eocalc.Ready || p != 0 {
		t.Errorf("status after failed run: %s %d", s, p)
	}
}

func TestRunCanceled(t *testing.T) {
	m := testAggregator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Run(ctx, testRegion, eocalc.MustDateRange("2019-01-01", "2019-01-05"), eocalc.NO2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, have %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	small := eocalc.NewRegion(geom.Polygon{{
		{X: -122.25, Y: 37.25}, {X: -122, Y: 37.25}, {X: -122, Y: 37.5}, {X: -122.25, Y: 37.5}, {X: -122.25, Y: 37.25},
	}})
	tests := []struct {
		name      string
		region    *eocalc.Region
		period    eocalc.DateRange
		pollutant eocalc.Pollutant
		cause     eocalc.Cause
	}{
		{"small", small, eocalc.MustDateRange("2019-01-01", "2019-01-31"), eocalc.NO2, eocalc.RegionTooSmall},
		{"early", testRegion, eocalc.MustDateRange("2018-01-31", "2018-02-05"), eocalc.NO2, eocalc.PeriodTooEarly},
		{"late", testRegion, eocalc.MustDateRange("2019-01-01", "2999-01-01"), eocalc.NO2, eocalc.PeriodTooLate},
		{"pollutant", testRegion, eocalc.MustDateRange("2019-01-01", "2019-01-31"), eocalc.SO2, eocalc.PollutantUnsupported},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := testAggregator()
			s := &statusSource{m: m, status: -1}
			m.Source = s
			_, err := m.Run(context.Background(), test.region, test.period, test.pollutant)
			var verr *eocalc.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want validation error, have %v", err)
			}
			if verr.Cause != test.cause {
				t.Errorf("have cause %s, want %s", verr.Cause, test.cause)
			}
			if s.status != -1 {
				t.Error("source should not be used")
			}
		})
	}
}
