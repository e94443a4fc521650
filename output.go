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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/tealeg/xlsx"
)

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSV writes the table to w with a header row and one row
// per sector.
func (t *SectorTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Sector"}, t.Columns()...)); err != nil {
		return fmt.Errorf("eocalc: writing sector table: %w", err)
	}
	for i, r := range t.Rows {
		rec := []string{Sector(i).String(), formatFloat(r.Emissions), formatFloat(r.Umin), formatFloat(r.Umax)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("eocalc: writing sector table: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX returns the table as a spreadsheet with a single sheet.
func (t *SectorTable) XLSX() (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(t.Pollutant.String())
	if err != nil {
		return nil, fmt.Errorf("eocalc: creating spreadsheet: %w", err)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("Sector")
	for _, c := range t.Columns() {
		row.AddCell().SetString(c)
	}
	for i, r := range t.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(Sector(i).String())
		for _, v := range []float64{r.Emissions, r.Umin, r.Umax} {
			cell := row.AddCell()
			if !math.IsNaN(v) {
				cell.SetFloat(v)
			}
		}
	}
	return f, nil
}

// WriteXLSX writes the table to a spreadsheet file at path.
func (t *SectorTable) WriteXLSX(path string) error {
	f, err := t.XLSX()
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("eocalc: saving spreadsheet: %w", err)
	}
	return nil
}

// WriteCSV writes the table, excluding geometry, to w.
func (t *GridTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"row", "col", "lon", "lat"}, t.Columns()...)); err != nil {
		return fmt.Errorf("eocalc: writing grid table: %w", err)
	}
	for _, r := range t.Rows {
		rec := []string{
			strconv.Itoa(r.Row), strconv.Itoa(r.Col),
			formatFloat(r.CenterLon), formatFloat(r.CenterLat),
			formatFloat(r.Area), formatFloat(r.Total),
			formatFloat(r.Umin), formatFloat(r.Umax),
			strconv.Itoa(r.Values), strconv.Itoa(r.Missing),
		}
		for _, v := range r.Daily {
			rec = append(rec, formatFloat(v))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("eocalc: writing grid table: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteShp writes the table to a shapefile at path. Daily values are
// left out because shapefile attribute tables are limited to 255 columns.
func (t *GridTable) WriteShp(path string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	fields := []goshp.Field{
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
		goshp.FloatField("area_km2", 24, 8),
		goshp.FloatField("total_kg", 24, 8),
		goshp.FloatField("umin_pct", 24, 8),
		goshp.FloatField("umax_pct", 24, 8),
		goshp.NumberField("n_values", 10),
		goshp.NumberField("n_missing", 10),
	}
	e, err := shp.NewEncoderFromFields(base+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("eocalc: creating emissions shapefile: %w", err)
	}
	for _, r := range t.Rows {
		err := e.EncodeFields(r.Polygonal, r.Row, r.Col, r.Area, r.Total, r.Umin, r.Umax, r.Values, r.Missing)
		if err != nil {
			e.Close()
			return fmt.Errorf("eocalc: writing emissions shapefile: %w", err)
		}
	}
	e.Close()
	return writePrj(base + ".prj")
}

type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONFeatureCollection struct {
	Type     string            `json:"type"`
	Features []*geoJSONFeature `json:"features"`
}

// WriteGeoJSON writes the table to w as a GeoJSON FeatureCollection.
// Missing values are written as null.
func (t *GridTable) WriteGeoJSON(w io.Writer) error {
	fc := geoJSONFeatureCollection{Type: "FeatureCollection"}
	cols := t.Columns()
	for _, r := range t.Rows {
		g, err := polygonalToGeoJSON(r.Polygonal)
		if err != nil {
			return fmt.Errorf("eocalc: encoding cell geometry: %w", err)
		}
		props := map[string]interface{}{
			"row":   r.Row,
			"col":   r.Col,
			cols[0]: nullable(r.Area),
			cols[1]: nullable(r.Total),
			cols[2]: nullable(r.Umin),
			cols[3]: nullable(r.Umax),
			cols[4]: r.Values,
			cols[5]: r.Missing,
		}
		if !math.IsNaN(r.CenterLon) {
			props["lon"], props["lat"] = r.CenterLon, r.CenterLat
		}
		for i, v := range r.Daily {
			props[cols[6+i]] = nullable(v)
		}
		fc.Features = append(fc.Features, &geoJSONFeature{Type: "Feature", Geometry: g, Properties: props})
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("eocalc: writing GeoJSON: %w", err)
	}
	return nil
}

// polygonalToGeoJSON encodes g as a Polygon when it has a single
// polygon and as a MultiPolygon otherwise.
func polygonalToGeoJSON(g geom.Polygonal) (*geojson.Geometry, error) {
	polys := g.Polygons()
	if len(polys) == 1 {
		return geojson.ToGeoJSON(polys[0])
	}
	coords := make([][][][]float64, len(polys))
	for i, p := range polys {
		coords[i] = make([][][]float64, len(p))
		for j, ring := range p {
			coords[i][j] = make([][]float64, len(ring))
			for k, pt := range ring {
				coords[i][j][k] = []float64{pt.X, pt.Y}
			}
		}
	}
	return &geojson.Geometry{Type: "MultiPolygon", Coordinates: coords}, nil
}

func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
