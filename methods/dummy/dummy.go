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

// Package dummy provides a calculator that accepts any input and
// returns a constant. It is used to exercise user interfaces and
// command line tooling without real data.
package dummy

import (
	"context"
	"math"
	"time"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/eocalc"
)

// Total is the Totals row emission value returned by every run [kt].
const Total = 42

var world = eocalc.NewRegion(geom.Polygon{{
	{X: -180, Y: -90}, {X: 180, Y: -90}, {X: 180, Y: 90}, {X: -180, Y: 90}, {X: -180, Y: -90},
}})

// Calculator implements eocalc.Calculator in the laziest way possible.
type Calculator struct {
	eocalc.State

	// Delay is the time spent at each progress step.
	Delay time.Duration
}

// New returns a calculator that pauses one second at each progress step.
func New() *Calculator {
	return &Calculator{Delay: time.Second}
}

// MinimumAreaSize implements eocalc.Limits.
func (*Calculator) MinimumAreaSize() float64 { return 0 }

// MinimumPeriodLength implements eocalc.Limits.
func (*Calculator) MinimumPeriodLength() int { return 0 }

// EarliestStartDate implements eocalc.Limits.
func (*Calculator) EarliestStartDate() time.Time { return time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC) }

// LatestEndDate implements eocalc.Limits.
func (*Calculator) LatestEndDate() time.Time { return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC) }

// Coverage implements eocalc.Limits.
func (*Calculator) Coverage() *eocalc.Region { return world }

// Supports implements eocalc.Limits.
func (*Calculator) Supports(p eocalc.Pollutant) bool { return p.Valid() }

// Run steps through 20, 50 and 80 percent progress and returns a
// result whose Totals row is Total. The inputs are ignored.
func (c *Calculator) Run(ctx context.Context, _ *eocalc.Region, _ eocalc.DateRange, p eocalc.Pollutant) (*eocalc.Result, error) {
	c.Start()
	defer c.Finish()
	for _, progress := range []int{20, 50, 80} {
		c.Progress(progress)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Delay):
		}
	}
	t := eocalc.NewSectorTable(p)
	t.Set(eocalc.Totals, eocalc.SectorRow{Emissions: Total, Umin: math.NaN(), Umax: math.NaN()})
	return &eocalc.Result{Totals: t, Grid: &eocalc.GridTable{Pollutant: p}}, nil
}
