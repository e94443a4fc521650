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
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidInput is returned when the inputs to an uncertainty
// calculation are inconsistent.
var ErrInvalidInput = errors.New("eocalc: invalid input")

// CombineUncertainties combines the relative uncertainties of a
// set of quantities into the relative uncertainty of their sum
// (IPCC Guidelines, Vol. 1, Ch. 3, Eq. 3.2):
//
//	U = sqrt(Σ(x_i·u_i)²) / Σ|x_i|
//
// values and uncertainties are paired by position, and only the first
// len(values) uncertainties are used. Undefined (NaN) values are
// skipped together with their uncertainty. The result is 0 when no
// defined value is different from zero.
func CombineUncertainties(values, uncertainties []float64) (float64, error) {
	if len(values) > len(uncertainties) {
		return math.NaN(), fmt.Errorf("%w: %d values but only %d uncertainties",
			ErrInvalidInput, len(values), len(uncertainties))
	}
	abs := make([]float64, 0, len(values))
	weighted := make([]float64, 0, len(values))
	for i, x := range values {
		if math.IsNaN(x) {
			continue
		}
		u := uncertainties[i]
		if math.IsNaN(u) {
			return math.NaN(), fmt.Errorf("%w: undefined uncertainty at position %d",
				ErrInvalidInput, i)
		}
		abs = append(abs, math.Abs(x))
		weighted = append(weighted, x*u)
	}
	sum := floats.Sum(abs)
	if sum == 0 {
		return 0, nil
	}
	return math.Sqrt(floats.Dot(weighted, weighted)) / sum, nil
}
