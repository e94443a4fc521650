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
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/eocalc"
)

// TOMS grid format constants.
const (
	// BinWidth is the width and height of a grid cell [degrees].
	BinWidth = 0.125

	// ValuesPerRow is the number of four-digit values on each data line.
	ValuesPerRow = 20

	// NaNValue marks a cell without data.
	NaNValue = -999

	// CellUncertainty is the relative uncertainty assumed for
	// each cell value [%].
	CellUncertainty = 1000.
)

// ErrMalformedSourceFile is returned when a TOMS file cannot be parsed.
var ErrMalformedSourceFile = errors.New("temis: malformed source file")

const fieldWidth = 4

// ReadTOMS reads the values of the cells in the TOMS formatted data in r
// that fall within b. b is snapped to the data grid the same way
// eocalc.NewGrid snaps, so the values line up with the cells of a
// snapped grid of BinWidth cells over b. Values are returned in file
// order, which is by ascending latitude and then ascending longitude.
// Cells without data are NaN.
func ReadTOMS(r io.Reader, b *geom.Bounds) ([]float64, error) {
	sb := eocalc.SnapBounds(b, BinWidth, BinWidth)
	minLat, maxLat := sb.Min.Y, sb.Max.Y
	minLon, maxLon := sb.Min.X, sb.Max.X

	var result []float64
	lat, offset := -91., -180.
	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		line := s.Text()
		if strings.HasPrefix(line, "lat=") {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "lat=")), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid latitude: %v", ErrMalformedSourceFile, n, err)
			}
			lat, offset = v-BinWidth/2, -180
			continue
		}
		if lat < minLat || lat >= maxLat || !isDataLine(line) {
			continue
		}
		for k := 0; k < ValuesPerRow; k++ {
			lon := offset + float64(k)*BinWidth
			if lon < minLon || lon >= maxLon {
				continue
			}
			if len(line) < (k+1)*fieldWidth {
				return nil, fmt.Errorf("%w: line %d: %d characters, need %d",
					ErrMalformedSourceFile, n, len(line), (k+1)*fieldWidth)
			}
			v, err := strconv.Atoi(strings.TrimSpace(line[k*fieldWidth : (k+1)*fieldWidth]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSourceFile, n, err)
			}
			if v > NaNValue {
				result = append(result, float64(v))
			} else {
				result = append(result, math.NaN())
			}
		}
		offset += ValuesPerRow * BinWidth
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("temis: reading TOMS data: %w", err)
	}
	return result, nil
}

// ReadTOMSFile is like ReadTOMS but reads from the file at path.
func ReadTOMSFile(path string, b *geom.Bounds) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("temis: opening TOMS file: %w", err)
	}
	defer f.Close()
	v, err := ReadTOMS(f, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// isDataLine reports whether the first field of line holds an integer.
func isDataLine(line string) bool {
	if len(line) > fieldWidth {
		line = line[:fieldWidth]
	}
	f := strings.TrimLeft(strings.TrimSpace(line), "-")
	if f == "" {
		return false
	}
	for _, c := range f {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
