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

// Package fluky provides a calculator returning random emissions. It
// has no scientific value and serves as a stand-in when testing the
// tooling around calculators.
package fluky

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/eocalc"
)

// Upper bounds of the random values.
const (
	MaxEmissions = 100.
	MaxUmin      = 18.
	MaxUmax      = 22.
)

var world = eocalc.NewRegion(geom.Polygon{{
	{X: -180, Y: -90}, {X: 180, Y: -90}, {X: 180, Y: 90}, {X: -180, Y: 90}, {X: -180, Y: -90},
}})

// Calculator implements eocalc.Calculator by returning random values
// for each GNFR sector.
type Calculator struct {
	eocalc.State

	mu   sync.Mutex
	rand *rand.Rand
}

// New returns a calculator drawing values from r. If r is nil, a
// source seeded with the current time is used.
func New(r *rand.Rand) *Calculator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Calculator{rand: r}
}

// MinimumAreaSize implements eocalc.Limits.
func (*Calculator) MinimumAreaSize() float64 { return 1 }

// MinimumPeriodLength implements eocalc.Limits.
func (*Calculator) MinimumPeriodLength() int { return 1 }

// EarliestStartDate implements eocalc.Limits.
func (*Calculator) EarliestStartDate() time.Time { return time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC) }

// LatestEndDate implements eocalc.Limits.
func (*Calculator) LatestEndDate() time.Time { return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC) }

// Coverage implements eocalc.Limits.
func (*Calculator) Coverage() *eocalc.Region { return world }

// Supports implements eocalc.Limits.
func (*Calculator) Supports(p eocalc.Pollutant) bool { return p.Valid() }

// Run implements eocalc.Calculator. The Totals row holds the column
// sums and the grid holds a single row spanning region.
func (c *Calculator) Run(ctx context.Context, region *eocalc.Region, period eocalc.DateRange, p eocalc.Pollutant) (*eocalc.Result, error) {
	if err := eocalc.Validate(c, region, period, p); err != nil {
		return nil, err
	}
	c.Start()
	defer c.Finish()

	t := eocalc.NewSectorTable(p)
	c.mu.Lock()
	for _, s := range eocalc.Sectors() {
		t.Set(s, eocalc.SectorRow{
			Emissions: c.rand.Float64() * MaxEmissions,
			Umin:      c.rand.Float64() * MaxUmin,
			Umax:      c.rand.Float64() * MaxUmax,
		})
	}
	c.mu.Unlock()
	t.SumSectors()
	c.Progress(50)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	area, err := region.Area()
	if err != nil {
		return nil, err
	}
	totals := t.Totals()
	grid := &eocalc.GridTable{Pollutant: p}
	grid.Rows = []*eocalc.GridRow{{
		GridCell: &eocalc.GridCell{
			Polygonal: region.Geom(),
			CenterLon: math.NaN(),
			CenterLat: math.NaN(),
		},
		Area:   area,
		Total:  totals.Emissions * 1.0e6,
		Umin:   totals.Umin,
		Umax:   totals.Umax,
		Values: period.Len(),
	}}
	return &eocalc.Result{Totals: t, Grid: grid}, nil
}
