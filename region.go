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
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/proj"
)

// Region is an area of the earth's surface in WGS84 longitude and
// latitude. Regions are not modified after they are created.
type Region struct {
	mp geom.MultiPolygon
}

// NewRegion creates a region from a copy of the given geometry.
func NewRegion(g geom.Polygonal) *Region {
	r := new(Region)
	for _, p := range g.Polygons() {
		pc := make(geom.Polygon, len(p))
		for i, ring := range p {
			pc[i] = append(geom.Path(nil), ring...)
		}
		r.mp = append(r.mp, pc)
	}
	return r
}

// ParseRegion decodes a region from GeoJSON. b may hold a Polygon or
// MultiPolygon geometry or a Feature containing one.
func ParseRegion(b []byte) (*Region, error) {
	var f struct {
		Type     string
		Geometry json.RawMessage
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("eocalc: decoding region: %w", err)
	}
	if f.Type == "Feature" {
		b = f.Geometry
	}
	g, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("eocalc: decoding region geometry: %w", err)
	}
	switch gg := g.(type) {
	case geom.Polygon:
		return NewRegion(gg), nil
	case geom.MultiPolygon:
		return NewRegion(gg), nil
	default:
		return nil, fmt.Errorf("eocalc: invalid region geometry type %T", g)
	}
}

// ReadRegion reads a GeoJSON region from r.
func ReadRegion(r io.Reader) (*Region, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("eocalc: reading region: %w", err)
	}
	return ParseRegion(b)
}

// Geom returns the region geometry. The result must not be modified.
func (r *Region) Geom() geom.MultiPolygon { return r.mp }

// Bounds returns the bounding box of the region in degrees.
func (r *Region) Bounds() *geom.Bounds { return r.mp.Bounds() }

// Area returns the area of the region in km², calculated in an
// equal-area projection.
func (r *Region) Area() (float64, error) {
	return EqualArea(r.mp, r.Bounds())
}

// Intersection returns the part of g that lies within the region.
func (r *Region) Intersection(g geom.Polygonal) geom.Polygonal {
	return g.Intersection(r.mp)
}

// Difference returns the part of the region that is outside of g.
func (r *Region) Difference(g geom.Polygonal) geom.Polygonal {
	return r.mp.Difference(g)
}

// MarshalJSON encodes the region as a GeoJSON MultiPolygon.
func (r *Region) MarshalJSON() ([]byte, error) {
	g, err := polygonalToGeoJSON(r.mp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

// Standard parallels for the Albers projection. Albers is equal-area
// for any choice of parallels, so these only influence shape distortion.
const (
	albersLat1 = 29.5
	albersLat2 = 45.5
)

var longlat *proj.SR

func init() {
	var err error
	longlat, err = proj.Parse("+proj=longlat +datum=WGS84")
	if err != nil {
		panic(err)
	}
}

// EqualAreaTransform returns a transform from WGS84 longitude/latitude
// to an Albers equal-area projection in meters centered on the
// bounding box b.
func EqualAreaTransform(b *geom.Bounds) (proj.Transformer, error) {
	lon0 := (b.Min.X + b.Max.X) / 2
	lat0 := (b.Min.Y + b.Max.Y) / 2
	if math.IsNaN(lon0) || math.IsInf(lon0, 0) {
		lon0, lat0 = 0, 0
	}
	sr, err := proj.Parse(fmt.Sprintf("+proj=aea +lat_1=%g +lat_2=%g +lat_0=%g +lon_0=%g +x_0=0 +y_0=0 +datum=WGS84 +units=m",
		albersLat1, albersLat2, lat0, lon0))
	if err != nil {
		return nil, fmt.Errorf("eocalc: creating equal-area projection: %w", err)
	}
	ct, err := longlat.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("eocalc: creating equal-area transform: %w", err)
	}
	return ct, nil
}

// EqualArea returns the area of g in km², where g is in WGS84
// longitude/latitude and the projection is centered on b.
func EqualArea(g geom.Polygonal, b *geom.Bounds) (float64, error) {
	ct, err := EqualAreaTransform(b)
	if err != nil {
		return math.NaN(), err
	}
	return ProjectedArea(g, ct)
}

// densifyStep is the longest edge [degrees] that is projected as a
// straight line. Edges of constant latitude are curves in the equal-area
// projection, so longer edges are split before projecting.
const densifyStep = 0.01

// ProjectedArea returns the area of g in km² after transforming it with
// ct, which must project to meters.
func ProjectedArea(g geom.Polygonal, ct proj.Transformer) (float64, error) {
	gg, err := densify(g, densifyStep).Transform(ct)
	if err != nil {
		return math.NaN(), fmt.Errorf("eocalc: projecting geometry: %w", err)
	}
	return gg.(geom.Polygonal).Area() / 1.0e6, nil
}

// densify returns a copy of g in which no edge spans more than step
// degrees of longitude or latitude.
func densify(g geom.Polygonal, step float64) geom.MultiPolygon {
	var o geom.MultiPolygon
	for _, p := range g.Polygons() {
		dp := make(geom.Polygon, len(p))
		for i, ring := range p {
			var r geom.Path
			for j := 0; j+1 < len(ring); j++ {
				a, b := ring[j], ring[j+1]
				n := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)) / step))
				if n < 1 {
					n = 1
				}
				for k := 0; k < n; k++ {
					f := float64(k) / float64(n)
					r = append(r, geom.Point{X: a.X + f*(b.X-a.X), Y: a.Y + f*(b.Y-a.Y)})
				}
			}
			if len(ring) > 0 {
				r = append(r, ring[len(ring)-1])
			}
			dp[i] = r
		}
		o = append(o, dp)
	}
	return o
}
