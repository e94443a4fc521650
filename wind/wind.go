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

// Package wind holds helpers for working with near-surface wind fields,
// which methods that account for the transport of pollutants need.
//
// Directions follow the meteorological convention: the direction the
// wind is blowing from, in degrees clockwise from north.
package wind

import (
	"context"
	"math"
	"time"
)

const degrees = 180 / math.Pi

// Provider returns the eastward (u) and northward (v) wind components
// [m/s] at a location and time.
type Provider interface {
	Wind(ctx context.Context, lon, lat float64, t time.Time) (u, v float64, err error)
}

// UV returns the wind components for a wind of the given speed [m/s]
// blowing from dir [degrees].
func UV(speed, dir float64) (u, v float64) {
	r := dir / degrees
	return -speed * math.Sin(r), -speed * math.Cos(r)
}

// Speed returns the wind speed for the components u and v.
func Speed(u, v float64) float64 {
	return math.Hypot(u, v)
}

// Direction returns the direction [0, 360) the wind with components
// u and v is blowing from. Calm wind has direction 0.
func Direction(u, v float64) float64 {
	if u == 0 && v == 0 {
		return 0
	}
	d := math.Atan2(-u, -v) * degrees
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}

// Constant is a Provider returning the same wind everywhere.
type Constant struct {
	U, V float64
}

// Wind implements Provider.
func (c Constant) Wind(ctx context.Context, lon, lat float64, t time.Time) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return c.U, c.V, nil
}
