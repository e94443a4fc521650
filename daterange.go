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
	"fmt"
	"time"

	"github.com/spf13/cast"
)

var (
	// ErrInvalidDate is returned when a value cannot be interpreted as a
	// calendar date.
	ErrInvalidDate = errors.New("eocalc: invalid date")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("eocalc: invalid date range")
)

const dateFormat = "2006-01-02"

// DateRange is a span of calendar days. Both Start and End are
// included in the range. The zero value is not a valid range; use
// NewDateRange.
type DateRange struct {
	start, end time.Time
	ok         bool
}

// NewDateRange creates a date range from start to end, both inclusive.
// start and end may be time.Time values or strings in ISO-8601 format
// (e.g., "2019-01-31").
func NewDateRange(start, end interface{}) (DateRange, error) {
	s, err := toDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := toDate(end)
	if err != nil {
		return DateRange{}, err
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: %s is before %s", ErrInvalidRange,
			e.Format(dateFormat), s.Format(dateFormat))
	}
	return DateRange{start: s, end: e, ok: true}, nil
}

// MustDateRange is like NewDateRange but panics if the range is invalid.
func MustDateRange(start, end string) DateRange {
	d, err := NewDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return d
}

// toDate truncates the given value to a calendar day in UTC.
func toDate(v interface{}) (time.Time, error) {
	var t time.Time
	switch vv := v.(type) {
	case time.Time:
		t = vv
	case string:
		var err error
		t, err = cast.ToTimeE(vv)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, vv)
		}
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, v)
	}
	return day(t), nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the first day in the range.
func (d DateRange) Start() time.Time { return d.start }

// End returns the last day in the range.
func (d DateRange) End() time.Time { return d.end }

// SetStart changes the first day in the range. d is left unchanged
// if the new start is invalid or after the end of the range.
func (d *DateRange) SetStart(start interface{}) error {
	s, err := toDate(start)
	if err != nil {
		return err
	}
	if d.end.Before(s) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange,
			s.Format(dateFormat), d.end.Format(dateFormat))
	}
	d.start = s
	return nil
}

// SetEnd changes the last day in the range. d is left unchanged
// if the new end is invalid or before the start of the range.
func (d *DateRange) SetEnd(end interface{}) error {
	e, err := toDate(end)
	if err != nil {
		return err
	}
	if e.Before(d.start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			e.Format(dateFormat), d.start.Format(dateFormat))
	}
	d.end = e
	return nil
}

// Len returns the number of days in the range.
func (d DateRange) Len() int {
	if !d.ok {
		return 0
	}
	// time.Duration cannot hold spans of more than about 292 years.
	return int((d.end.Unix()-d.start.Unix())/86400) + 1
}

// Contains returns whether t falls on one of the days in the range.
func (d DateRange) Contains(t time.Time) bool {
	t = day(t)
	return !t.Before(d.start) && !t.After(d.end)
}

// Each calls fn for every day in the range in ascending order, stopping
// at the first error.
func (d DateRange) Each(fn func(day time.Time) error) error {
	for i, n := 0, d.Len(); i < n; i++ {
		if err := fn(d.start.AddDate(0, 0, i)); err != nil {
			return err
		}
	}
	return nil
}

// Days returns all days in the range in ascending order.
func (d DateRange) Days() []time.Time {
	o := make([]time.Time, 0, d.Len())
	d.Each(func(t time.Time) error {
		o = append(o, t)
		return nil
	})
	return o
}

func (d DateRange) String() string {
	return fmt.Sprintf("[%s to %s, %d days]", d.start.Format(dateFormat),
		d.end.Format(dateFormat), d.Len())
}
