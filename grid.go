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
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	goshp "github.com/jonas-p/go-shp"
)

func init() {
	gob.Register(geom.Polygon{})
}

// Grid is a regular longitude/latitude grid.
type Grid struct {
	Nx, Ny int
	Dx, Dy float64
	X0, Y0 float64
	Cells  []*GridCell
	rtree  *rtree.Rtree
}

// GridCell is an individual cell in a grid.
type GridCell struct {
	geom.Polygonal
	Row, Col int

	// CenterLon and CenterLat hold the coordinates of the cell center
	// when they were requested when creating the grid, and are NaN
	// otherwise.
	CenterLon, CenterLat float64
}

// snapTolerance keeps bounds that lie on a lattice line, up to
// floating point error, from adding an extra row or column.
const snapTolerance = 1.0e-9

// NewGrid creates the smallest grid of width × height degree cells
// that covers b. If snap is true, cell edges are aligned with
// multiples of width and height; otherwise the grid starts at the
// lower-left corner of b. If centers is true, the coordinates of the
// cell centers are stored in each cell.
//
// Cells are ordered from the bottom-left corner of the grid, row by
// row from left to right, so the last cell is at the top-right corner.
func NewGrid(b *geom.Bounds, width, height float64, snap, centers bool) (*Grid, error) {
	if !(width > 0) || !(height > 0) {
		return nil, fmt.Errorf("eocalc: grid cell size must be positive, got %g×%g", width, height)
	}
	if b == nil || b.Empty() {
		return nil, fmt.Errorf("eocalc: cannot create a grid over empty bounds")
	}
	g := &Grid{Dx: width, Dy: height}
	g.X0, g.Nx = gridSpan(b.Min.X, b.Max.X, width, snap)
	g.Y0, g.Ny = gridSpan(b.Min.Y, b.Max.Y, height, snap)

	g.rtree = rtree.NewTree(25, 50)
	g.Cells = make([]*GridCell, 0, g.Nx*g.Ny)
	for iy := 0; iy < g.Ny; iy++ {
		for ix := 0; ix < g.Nx; ix++ {
			x := g.X0 + float64(ix)*g.Dx
			y := g.Y0 + float64(iy)*g.Dy
			cell := &GridCell{
				Row: iy, Col: ix,
				CenterLon: math.NaN(), CenterLat: math.NaN(),
			}
			cell.Polygonal = geom.Polygon{{
				{X: x, Y: y}, {X: x + g.Dx, Y: y},
				{X: x + g.Dx, Y: y + g.Dy}, {X: x, Y: y + g.Dy}, {X: x, Y: y}}}
			if centers {
				cell.CenterLon = x + g.Dx/2
				cell.CenterLat = y + g.Dy/2
			}
			g.rtree.Insert(cell)
			g.Cells = append(g.Cells, cell)
		}
	}
	return g, nil
}

// SnapBounds returns the bounds of the grid NewGrid creates over b with
// snapping: the smallest box with edges on multiples of width and height
// that covers b, up to the snapping tolerance.
func SnapBounds(b *geom.Bounds, width, height float64) *geom.Bounds {
	x0, nx := gridSpan(b.Min.X, b.Max.X, width, true)
	y0, ny := gridSpan(b.Min.Y, b.Max.Y, height, true)
	return &geom.Bounds{
		Min: geom.Point{X: x0, Y: y0},
		Max: geom.Point{X: x0 + float64(nx)*width, Y: y0 + float64(ny)*height},
	}
}

// gridSpan returns the origin and number of cells along one axis.
func gridSpan(min, max, size float64, snap bool) (origin float64, n int) {
	if snap {
		lo := math.Floor(min/size + snapTolerance)
		hi := math.Ceil(max/size - snapTolerance)
		origin, n = lo*size, int(hi-lo)
	} else {
		origin, n = min, int(math.Ceil((max-min)/size-snapTolerance))
	}
	if n < 1 {
		n = 1
	}
	return origin, n
}

// Len returns the number of cells in the grid.
func (g *Grid) Len() int { return len(g.Cells) }

// Extent returns the outline of the grid.
func (g *Grid) Extent() geom.Polygon {
	x1, y1 := g.X0+g.Dx*float64(g.Nx), g.Y0+g.Dy*float64(g.Ny)
	return geom.Polygon{{{X: g.X0, Y: g.Y0}, {X: x1, Y: g.Y0},
		{X: x1, Y: y1}, {X: g.X0, Y: y1}, {X: g.X0, Y: g.Y0}}}
}

// Cell returns the cell at the given row and column, or nil if
// they are outside of the grid.
func (g *Grid) Cell(row, col int) *GridCell {
	if row < 0 || row >= g.Ny || col < 0 || col >= g.Nx {
		return nil
	}
	return g.Cells[row*g.Nx+col]
}

// Clip returns the intersections of the grid cells with region, in grid
// order. Cells that do not overlap the region are left out. The returned
// cells are copies; the grid is not modified.
func (g *Grid) Clip(region *Region) []*GridCell {
	candidates := make(map[*GridCell]bool)
	for _, p := range region.Geom() {
		for _, cI := range g.rtree.SearchIntersect(p.Bounds()) {
			candidates[cI.(*GridCell)] = true
		}
	}
	var o []*GridCell
	for _, c := range g.Cells {
		if !candidates[c] {
			continue
		}
		isect := region.Intersection(c.Polygonal)
		if isect == nil || len(isect.Polygons()) == 0 || isect.Area() == 0 {
			continue
		}
		cc := *c
		cc.Polygonal = isect
		o = append(o, &cc)
	}
	return o
}

// WriteShp writes the grid cells to a shapefile at path.
func (g *Grid) WriteShp(path string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(base + ext)
	}
	fields := []goshp.Field{
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
		goshp.FloatField("lon", 14, 6),
		goshp.FloatField("lat", 14, 6),
	}
	e, err := shp.NewEncoderFromFields(base+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("eocalc: creating grid shapefile: %w", err)
	}
	for _, c := range g.Cells {
		if err := e.EncodeFields(c.Polygonal, c.Row, c.Col, c.CenterLon, c.CenterLat); err != nil {
			e.Close()
			return fmt.Errorf("eocalc: writing grid shapefile: %w", err)
		}
	}
	e.Close()
	return writePrj(base + ".prj")
}

// wgs84WKT is the ESRI projection definition for WGS84 coordinates.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

func writePrj(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eocalc: creating projection file: %w", err)
	}
	if _, err := f.WriteString(wgs84WKT); err != nil {
		f.Close()
		return fmt.Errorf("eocalc: writing projection file: %w", err)
	}
	return f.Close()
}
