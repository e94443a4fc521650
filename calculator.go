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

// Package eocalc estimates air pollutant emissions for a region and a
// period of time from earth observation data. Estimation methods
// implement the Calculator interface; the shared grid, uncertainty and
// output tooling lives in this package.
package eocalc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ctessum/geom"
)

// Status is the state of a calculator.
type Status int

// Calculator states.
const (
	Ready Status = iota
	Running
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Limits describes the inputs an estimation method can reliably
// work with.
type Limits interface {
	// MinimumAreaSize is the smallest region area in km² the method
	// can work on.
	MinimumAreaSize() float64

	// MinimumPeriodLength is the minimum number of days in a period.
	MinimumPeriodLength() int

	// EarliestStartDate is the first day the method can be used for.
	EarliestStartDate() time.Time

	// LatestEndDate is the last day the method can be used for.
	LatestEndDate() time.Time

	// Coverage is the area of the earth the method has data for.
	Coverage() *Region

	// Supports returns whether the method can estimate emissions of p.
	Supports(p Pollutant) bool
}

// Calculator is implemented by emission estimation methods.
type Calculator interface {
	Limits

	// Status returns the current state of the calculator and its
	// progress in percent.
	Status() (Status, int)

	// Run estimates the emissions of pollutant in region during
	// period. The calculator returns to Ready when Run returns,
	// whether or not an error occurred.
	Run(ctx context.Context, region *Region, period DateRange, pollutant Pollutant) (*Result, error)
}

// Result holds the outputs of a calculation.
type Result struct {
	// Totals holds the emissions by GNFR sector.
	Totals *SectorTable

	// Grid holds the gridded emissions.
	Grid *GridTable
}

// State tracks the status and progress of a calculator. It is meant
// to be embedded in Calculator implementations and is safe for
// concurrent use.
type State struct {
	mu       sync.RWMutex
	status   Status
	progress int
}

// Status returns the current status and progress.
func (s *State) Status() (Status, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.progress
}

// Start marks the calculator as Running with progress 0.
func (s *State) Start() {
	s.mu.Lock()
	s.status, s.progress = Running, 0
	s.mu.Unlock()
}

// Progress sets the progress in percent. Values outside of [0, 100] are
// clamped, and progress never moves backwards while Running.
func (s *State) Progress(p int) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	s.mu.Lock()
	if p > s.progress {
		s.progress = p
	}
	s.mu.Unlock()
}

// Finish returns the calculator to Ready with progress 0.
func (s *State) Finish() {
	s.mu.Lock()
	s.status, s.progress = Ready, 0
	s.mu.Unlock()
}

// ErrValidation is matched by all errors returned by Validate.
var ErrValidation = errors.New("eocalc: validation failed")

// Cause identifies the check that made validation fail.
type Cause int

// Validation failure causes.
const (
	RegionNotCovered Cause = iota + 1
	RegionTooSmall
	PeriodTooShort
	PeriodTooEarly
	PeriodTooLate
	PollutantUnsupported
)

func (c Cause) String() string {
	switch c {
	case RegionNotCovered:
		return "RegionNotCovered"
	case RegionTooSmall:
		return "RegionTooSmall"
	case PeriodTooShort:
		return "PeriodTooShort"
	case PeriodTooEarly:
		return "PeriodTooEarly"
	case PeriodTooLate:
		return "PeriodTooLate"
	case PollutantUnsupported:
		return "PollutantUnsupported"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// ValidationError is returned when a method cannot be used for the
// requested inputs.
type ValidationError struct {
	Cause Cause
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("eocalc: %s: %s", e.Cause, e.Msg)
}

// Is makes errors.Is(err, ErrValidation) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// coverTolerance is the fraction of a region's area that may lie
// outside of the coverage because of floating point noise in polygon
// clipping.
const coverTolerance = 1.0e-9

// Covers returns whether the coverage of l contains all of region.
func Covers(l Limits, region *Region) bool {
	coverage := l.Coverage()
	if coverage == nil {
		return false
	}
	for _, p := range region.Geom() {
		for _, ring := range p {
			for _, pt := range ring {
				if pt.Within(coverage.Geom()) == geom.Outside {
					return false
				}
			}
		}
	}
	d := region.Difference(coverage.Geom())
	if d == nil {
		return true
	}
	return math.Abs(d.Area()) <= coverTolerance*math.Max(math.Abs(region.Geom().Area()), 1)
}

// Validate checks whether l can be used to estimate emissions of pollutant
// in region during period. It returns a *ValidationError describing the
// first failed check.
func Validate(l Limits, region *Region, period DateRange, pollutant Pollutant) error {
	const dateFmt = "2006-01-02"
	if region == nil || !Covers(l, region) {
		return &ValidationError{Cause: RegionNotCovered, Msg: "region is not covered by the method"}
	}
	area, err := region.Area()
	if err != nil {
		return err
	}
	if area < l.MinimumAreaSize() {
		return &ValidationError{Cause: RegionTooSmall,
			Msg: fmt.Sprintf("region area %g km² is smaller than the minimum of %g km²", area, l.MinimumAreaSize())}
	}
	if period.Len() < l.MinimumPeriodLength() {
		return &ValidationError{Cause: PeriodTooShort,
			Msg: fmt.Sprintf("period of %d days is shorter than the minimum of %d days", period.Len(), l.MinimumPeriodLength())}
	}
	if period.Start().Before(day(l.EarliestStartDate())) {
		return &ValidationError{Cause: PeriodTooEarly,
			Msg: fmt.Sprintf("period starts on %s, before %s", period.Start().Format(dateFmt), l.EarliestStartDate().Format(dateFmt))}
	}
	if period.End().After(day(l.LatestEndDate())) {
		return &ValidationError{Cause: PeriodTooLate,
			Msg: fmt.Sprintf("period ends on %s, after %s", period.End().Format(dateFmt), l.LatestEndDate().Format(dateFmt))}
	}
	if !l.Supports(pollutant) {
		return &ValidationError{Cause: PollutantUnsupported,
			Msg: fmt.Sprintf("pollutant %s is not supported", pollutant)}
	}
	return nil
}
