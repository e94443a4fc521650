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

package eocalcutil

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ctessum/geom/encoding/shp"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "eocalcutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

// readCSV reads all records of a CSV file.
func readCSV(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestVersion(t *testing.T) {
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
}

func TestRunTEMIS(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	Cfg.Set("Method", "temis")
	Cfg.Set("Region", "testdata/region.geojson")
	Cfg.Set("Start", "2019-01-01")
	Cfg.Set("End", "2019-01-03")
	Cfg.Set("Pollutant", "NO2")
	Cfg.Set("TEMIS.DataDir", "../methods/temis/testdata")
	Cfg.Set("OutputFile", filepath.Join(dir, "totals.csv"))
	Cfg.Set("GridOutputFile", filepath.Join(dir, "grid.geojson"))
	Cfg.Set("MetricsFile", filepath.Join(dir, "metrics.prom"))
	defer Cfg.Set("MetricsFile", "")

	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	recs := readCSV(t, filepath.Join(dir, "totals.csv"))
	if len(recs) != 19 {
		t.Fatalf("have %d records, want 19", len(recs))
	}
	if want := "Sector"; recs[0][0] != want {
		t.Errorf("header: have %s, want %s", recs[0][0], want)
	}
	totals := recs[18]
	if totals[0] != "Totals" || totals[1] == "" {
		t.Errorf("totals row: %v", totals)
	}

	b, err := ioutil.ReadFile(filepath.Join(dir, "grid.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	var fc struct {
		Features []struct {
			Properties map[string]interface{}
		}
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 80 {
		t.Errorf("have %d grid cells, want 80", len(fc.Features))
	}

	m, err := ioutil.ReadFile(filepath.Join(dir, "metrics.prom"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(m), "eocalc_temis_months_loaded_total") {
		t.Errorf("metrics file does not hold TEMIS metrics:\n%s", m)
	}
}

func TestRunFlukyXLSX(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	Cfg.Set("Method", "fluky")
	Cfg.Set("Region", "testdata/region.geojson")
	Cfg.Set("Start", "2019-01-01")
	Cfg.Set("End", "2019-12-31")
	Cfg.Set("Pollutant", "PM2.5")
	Cfg.Set("OutputFile", filepath.Join(dir, "totals.xlsx"))
	Cfg.Set("GridOutputFile", filepath.Join(dir, "grid.shp"))

	Root.SetArgs([]string{"run"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"totals.xlsx", "grid.shp", "grid.dbf", "grid.shx", "grid.prj"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing output: %v", err)
		}
	}
}

func TestRunInvalid(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	Cfg.Set("Method", "fluky")
	Cfg.Set("Region", "testdata/region.geojson")
	Cfg.Set("Start", "2019-01-01")
	Cfg.Set("End", "2019-01-02")
	Cfg.Set("Pollutant", "NO2")
	Cfg.Set("GridOutputFile", "")

	tests := []struct {
		name, key, value string
	}{
		{name: "method", key: "Method", value: "crystal-ball"},
		{name: "pollutant", key: "Pollutant", value: "CO2"},
		{name: "period", key: "End", value: "2018-12-31"},
		{name: "output", key: "OutputFile", value: filepath.Join(dir, "totals.txt")},
		{name: "region", key: "Region", value: "testdata/missing.geojson"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			Cfg.Set("OutputFile", filepath.Join(dir, "totals.csv"))
			old := Cfg.Get(test.key)
			Cfg.Set(test.key, test.value)
			defer Cfg.Set(test.key, old)

			Root.SetArgs([]string{"run"})
			if err := Root.Execute(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBatch(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	Cfg.Set("Method", "fluky")
	Cfg.Set("BatchFile", "testdata/regions.toml")
	Cfg.Set("Start", "2019-02-01")
	Cfg.Set("End", "2019-02-02")
	Cfg.Set("Pollutant", "NO2")
	Cfg.Set("OutputFile", filepath.Join(dir, "totals.csv"))
	Cfg.Set("GridOutputFile", filepath.Join(dir, "grid.csv"))

	Root.SetArgs([]string{"batch"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for name, days := range map[string]int{"bay": 2, "bay_january": 31} {
		if recs := readCSV(t, filepath.Join(dir, "totals_"+name+".csv")); len(recs) != 19 {
			t.Errorf("%s: have %d sector records, want 19", name, len(recs))
		}
		recs := readCSV(t, filepath.Join(dir, "grid_"+name+".csv"))
		if len(recs) != 2 {
			t.Fatalf("%s: have %d grid records, want 2", name, len(recs))
		}
		if have, want := recs[1][8], strconv.Itoa(days); have != want {
			t.Errorf("%s: have %s values, want %s", name, have, want)
		}
	}
}

func TestGrid(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	Cfg.Set("Region", "testdata/region.geojson")
	Cfg.Set("GridResolution", 0.125)
	Cfg.Set("GridOutputFile", filepath.Join(dir, "grid.shp"))

	Root.SetArgs([]string{"grid"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}

	d, err := shp.NewDecoder(filepath.Join(dir, "grid.shp"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	var n int
	for {
		_, fields, more := d.DecodeRowFields("row", "col")
		if !more {
			break
		}
		if fields["row"] == "" || fields["col"] == "" {
			t.Errorf("cell %d is missing its index: %v", n, fields)
		}
		n++
	}
	if err := d.Error(); err != nil {
		t.Fatal(err)
	}
	if n != 80 {
		t.Errorf("have %d cells, want 80", n)
	}
}

func TestFetch(t *testing.T) {
	mirror := tempDir(t)
	defer os.RemoveAll(mirror)
	dataDir := tempDir(t)
	defer os.RemoveAll(dataDir)

	const content = "lat=0.0625\n  10  20\n"
	for _, month := range []string{"01", "02"} {
		dir := filepath.Join(mirror, "2019", month)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			t.Fatal(err)
		}
		f, err := os.Create(filepath.Join(dir, "no2_2019"+month+".asc.gz"))
		if err != nil {
			t.Fatal(err)
		}
		w := gzip.NewWriter(f)
		w.Write([]byte(content))
		w.Close()
		f.Close()
	}

	Cfg.Set("Start", "2019-01-20")
	Cfg.Set("End", "2019-02-10")
	Cfg.Set("TEMIS.DataDir", dataDir)
	Cfg.Set("TEMIS.URL", mirror)
	defer Cfg.Set("TEMIS.URL", "https://d1qb6yzwaaq4he.cloudfront.net/tropomi/no2")

	Root.SetArgs([]string{"fetch"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"no2_201901.asc", "no2_201902.asc"} {
		b, err := ioutil.ReadFile(filepath.Join(dataDir, f))
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != content {
			t.Errorf("%s: have %q, want %q", f, b, content)
		}
	}
}
