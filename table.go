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

package eocalc

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// SectorRow holds the emissions of one GNFR sector.
type SectorRow struct {
	// Emissions [kt]
	Emissions float64

	// Umin and Umax are the lower and upper relative uncertainties [%].
	Umin, Umax float64
}

// SectorTable holds emissions by GNFR sector, with a final row for
// the total over all sectors. Rows that a method does not estimate
// are NaN.
type SectorTable struct {
	Pollutant Pollutant
	Rows      [NumSectors + 1]SectorRow
}

// NewSectorTable returns a table for pollutant p with all rows unset.
func NewSectorTable(p Pollutant) *SectorTable {
	t := &SectorTable{Pollutant: p}
	for i := range t.Rows {
		t.Rows[i] = SectorRow{Emissions: math.NaN(), Umin: math.NaN(), Umax: math.NaN()}
	}
	return t
}

// Columns returns the column names of the table.
func (t *SectorTable) Columns() []string {
	return []string{fmt.Sprintf("%s emissions [kt]", t.Pollutant), "Umin [%]", "Umax [%]"}
}

// Len returns the number of rows, including Totals.
func (t *SectorTable) Len() int { return len(t.Rows) }

// Get returns the row for sector s.
func (t *SectorTable) Get(s Sector) SectorRow { return t.Rows[s] }

// Set sets the row for sector s.
func (t *SectorTable) Set(s Sector, r SectorRow) { t.Rows[s] = r }

// Totals returns the Totals row.
func (t *SectorTable) Totals() SectorRow { return t.Rows[Totals] }

// SumSectors sets the Totals row to the column sums over all sectors,
// skipping unset values.
func (t *SectorTable) SumSectors() {
	var e, lo, hi float64
	for _, s := range Sectors() {
		r := t.Rows[s]
		e += nanZero(r.Emissions)
		lo += nanZero(r.Umin)
		hi += nanZero(r.Umax)
	}
	t.Rows[Totals] = SectorRow{Emissions: e, Umin: lo, Umax: hi}
}

func nanZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// GridRow holds the emissions in one grid cell, after the cell has been
// clipped to the region.
type GridRow struct {
	*GridCell

	// Area is the area of the clipped cell [km²].
	Area float64

	// Total is the sum of the daily emissions [kg].
	Total float64

	// Umin and Umax are the lower and upper relative uncertainties [%].
	Umin, Umax float64

	// Values is the number of days in the period and Missing is the
	// number of those days without data.
	Values, Missing int

	// Daily holds the emissions for each day in the period [kg].
	// Days without data are NaN.
	Daily []float64
}

// GridTable holds gridded emissions.
type GridTable struct {
	Pollutant Pollutant
	Days      []time.Time
	Rows      []*GridRow
}

// Columns returns the column names of the table, excluding the
// geometry.
func (t *GridTable) Columns() []string {
	c := []string{
		"Area [km²]",
		fmt.Sprintf("Total %s emissions [kg]", t.Pollutant),
		"Umin [%]",
		"Umax [%]",
		"Number of values [1]",
		"Missing values [1]",
	}
	for _, d := range t.Days {
		c = append(c, fmt.Sprintf("%s %s emissions [kg]", d.Format(dateFormat), t.Pollutant))
	}
	return c
}

// Len returns the number of rows in the table.
func (t *GridTable) Len() int { return len(t.Rows) }

// Total returns the total emissions over all cells [kg].
func (t *GridTable) Total() float64 {
	v := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		v[i] = r.Total
	}
	return floats.Sum(v)
}
