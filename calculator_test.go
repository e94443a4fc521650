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
	"errors"
	"testing"
	"time"
)

func mustRegion(t *testing.T, gj string) *Region {
	t.Helper()
	r, err := ParseRegion([]byte(gj))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

type southernCalc struct {
	State
	coverage *Region
}

func (c *southernCalc) MinimumAreaSize() float64  { return 42 }
func (c *southernCalc) MinimumPeriodLength() int  { return 42 }
func (c *southernCalc) Coverage() *Region         { return c.coverage }
func (c *southernCalc) Supports(p Pollutant) bool { return p == NH3 }
func (c *southernCalc) EarliestStartDate() time.Time {
	return time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)
}
func (c *southernCalc) LatestEndDate() time.Time {
	return time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)
}

func newSouthernCalc(t *testing.T) *southernCalc {
	return &southernCalc{coverage: mustRegion(t, `{"type": "MultiPolygon",
		"coordinates": [[[[-180, -90], [180, -90], [180, 0], [-180, 0], [-180, -90]]]]}`)}
}

const (
	sampleSouth = `{"type": "MultiPolygon",
		"coordinates": [[[[-110, -20], [140, -20], [180, -40], [-180, -30], [-110, -20]]]]}`
	sampleNorth = `{"type": "MultiPolygon",
		"coordinates": [[[[-110, 20], [140, 20], [180, 40], [-180, 30], [-110, 20]]]]}`
	sampleSpanEquator = `{"type": "MultiPolygon",
		"coordinates": [[[[-110, 20], [140, -20], [180, -40], [-180, -30], [-110, 20]]]]}`
	cloneCoverage = `{"type": "MultiPolygon",
		"coordinates": [[[[-180, -90], [180, -90], [180, 0], [-180, 0], [-180, -90]]]]}`
	otherCovered = `{"type": "MultiPolygon",
		"coordinates": [[[[0, 0], [0, -1], [-1, -1], [-1, 0], [0, 0]]]]}`
	otherNotCovered = `{"type": "MultiPolygon",
		"coordinates": [[[[0, 0], [0, 1], [1, 1], [1, 0], [0, 0]]]]}`
	tooSmallButCovered = `{"type": "MultiPolygon",
		"coordinates": [[[[0, 0], [0, -0.001], [-0.001, -0.001], [-0.001, 0], [0, 0]]]]}`
)

func TestCovers(t *testing.T) {
	c := newSouthernCalc(t)
	tests := []struct {
		name, region string
		want         bool
	}{
		{"north", sampleNorth, false},
		{"span equator", sampleSpanEquator, false},
		{"other not covered", otherNotCovered, false},
		{"south", sampleSouth, true},
		{"clone coverage", cloneCoverage, true},
		{"other covered", otherCovered, true},
		{"too small but covered", tooSmallButCovered, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Covers(c, mustRegion(t, test.region)); got != test.want {
				t.Errorf("Covers = %v; want %v", got, test.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	c := newSouthernCalc(t)
	supported := MustDateRange("2019-01-01", "2019-12-31")
	tests := []struct {
		name      string
		region    string
		period    DateRange
		pollutant Pollutant
		want      Cause
	}{
		{"no problem", otherCovered, supported, NH3, 0},
		{"not covered", otherNotCovered, supported, NH3, RegionNotCovered},
		{"too small", tooSmallButCovered, supported, NH3, RegionTooSmall},
		{"too early", otherCovered, MustDateRange("0001-01-01", "2019-12-31"), NH3, PeriodTooEarly},
		{"too late", otherCovered, MustDateRange("2000-01-01", "9999-12-31"), NH3, PeriodTooLate},
		{"too short", otherCovered, MustDateRange("2100-01-01", "2100-01-31"), NH3, PeriodTooShort},
		{"pollutant", otherCovered, supported, NO2, PollutantUnsupported},
		{"invalid pollutant", otherCovered, supported, 0, PollutantUnsupported},
		{"all wrong", otherNotCovered, MustDateRange("0001-01-01", "2019-12-31"), NO2, RegionNotCovered},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(c, mustRegion(t, test.region), test.period, test.pollutant)
			if test.want == 0 {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error %v should match ErrValidation", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %v is not a *ValidationError", err)
			}
			if verr.Cause != test.want {
				t.Errorf("cause %v; want %v", verr.Cause, test.want)
			}
		})
	}
	if s, p := c.Status(); s != Ready || p != 0 {
		t.Errorf("validation changed state to %v/%d", s, p)
	}
}

func TestState(t *testing.T) {
	var s State
	if st, p := s.Status(); st != Ready || p != 0 {
		t.Errorf("initial state %v/%d", st, p)
	}
	s.Start()
	s.Progress(40)
	s.Progress(20)
	if st, p := s.Status(); st != Running || p != 40 {
		t.Errorf("state %v/%d; want RUNNING/40", st, p)
	}
	s.Progress(150)
	if _, p := s.Status(); p != 100 {
		t.Errorf("progress %d; want 100", p)
	}
	s.Finish()
	if st, p := s.Status(); st != Ready || p != 0 {
		t.Errorf("final state %v/%d", st, p)
	}
}

func TestPollutant(t *testing.T) {
	for _, p := range Pollutants() {
		got, err := ParsePollutant(p.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != p {
			t.Errorf("%v != %v", got, p)
		}
	}
	if p, err := ParsePollutant("pm2.5"); err != nil || p != PM2_5 {
		t.Errorf("ParsePollutant(pm2.5) = %v, %v", p, err)
	}
	if _, err := ParsePollutant("CO2"); err == nil {
		t.Errorf("expected error for unknown pollutant")
	}
	if m, ok := NO2.MolarMass(); !ok || m != 46.01 {
		t.Errorf("NO2 molar mass %g, %v", m, ok)
	}
	if _, ok := PM2_5.MolarMass(); ok {
		t.Errorf("PM2_5 should not have a molar mass")
	}
	if Pollutant(0).Valid() {
		t.Errorf("zero pollutant should be invalid")
	}
}

func TestSectors(t *testing.T) {
	s := Sectors()
	if len(s) != 17 {
		t.Fatalf("%d sectors; want 17", len(s))
	}
	if s[0].String() != "A_PublicPower" || s[16].String() != "z_Memo" {
		t.Errorf("sectors run from %v to %v", s[0], s[16])
	}
	if Totals.String() != "Totals" {
		t.Errorf("Totals is named %v", Totals)
	}
}
