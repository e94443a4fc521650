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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/eocalc"
	"github.com/spatialmodel/eocalc/methods/temis"
)

var (
	totalsExts = []string{".csv", ".xlsx"}
	gridExts   = []string{".shp", ".geojson", ".json", ".csv"}
)

// checkOutputFile returns an error if path does not have one of the
// given extensions.
func checkOutputFile(name, path string, exts ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("eocalcutil: %s %q must have one of the extensions %v", name, path, exts)
}

// Run estimates the emissions of pollutant within region during period
// using calc. The emissions by sector are written to outputFile and, if
// gridFile is not empty, the gridded emissions are written to gridFile.
// Either file can be a blob storage URL.
func Run(ctx context.Context, calc eocalc.Calculator, region *eocalc.Region, period eocalc.DateRange, pollutant eocalc.Pollutant, outputFile, gridFile string) (*eocalc.Result, error) {
	if err := checkOutputFile("OutputFile", outputFile, totalsExts...); err != nil {
		return nil, err
	}
	if gridFile != "" {
		if err := checkOutputFile("GridOutputFile", gridFile, gridExts...); err != nil {
			return nil, err
		}
	}
	log := logrus.WithFields(logrus.Fields{
		"method":    fmt.Sprintf("%T", calc),
		"period":    period.String(),
		"pollutant": pollutant.String(),
	})
	log.Info("estimating emissions")
	start := time.Now()
	result, err := calc.Run(ctx, region, period, pollutant)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"total_kt": result.Totals.Totals().Emissions,
		"cells":    result.Grid.Len(),
		"duration": time.Since(start),
	}).Info("finished estimating emissions")

	u := new(uploader)
	totalsPath, gridPath := u.maybeUpload(outputFile), ""
	if gridFile != "" {
		gridPath = u.maybeUpload(gridFile)
	}
	if u.err != nil {
		return nil, u.err
	}
	if err := writeTotals(totalsPath, result.Totals); err != nil {
		return nil, err
	}
	if gridPath != "" {
		if err := writeGrid(gridPath, result.Grid); err != nil {
			return nil, err
		}
	}
	if err := u.uploadOutput(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func writeTotals(path string, t *eocalc.SectorTable) error {
	if strings.ToLower(filepath.Ext(path)) == ".xlsx" {
		return t.WriteXLSX(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eocalcutil: creating output file: %w", err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeGrid(path string, t *eocalc.GridTable) error {
	var write func(f *os.File) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return t.WriteShp(path)
	case ".csv":
		write = func(f *os.File) error { return t.WriteCSV(f) }
	default:
		write = func(f *os.File) error { return t.WriteGeoJSON(f) }
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eocalcutil: creating output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Grid writes the grid of resolution × resolution degree cells that
// covers region, clipped to region, to a shapefile at path. Cell edges
// are aligned with multiples of the resolution.
func Grid(ctx context.Context, region *eocalc.Region, resolution float64, path string) error {
	if err := checkOutputFile("GridOutputFile", path, ".shp"); err != nil {
		return err
	}
	g, err := eocalc.NewGrid(region.Bounds(), resolution, resolution, true, true)
	if err != nil {
		return err
	}
	clipped := *g
	clipped.Cells = g.Clip(region)
	logrus.WithFields(logrus.Fields{
		"resolution": resolution,
		"cells":      len(clipped.Cells),
	}).Info("writing grid")

	u := new(uploader)
	local := u.maybeUpload(path)
	if u.err != nil {
		return u.err
	}
	if err := clipped.WriteShp(local); err != nil {
		return err
	}
	return u.uploadOutput(ctx)
}

// Fetch makes the TEMIS monthly mean files for all months in period
// available locally, downloading them concurrently where needed. It
// returns the local paths in chronological order.
func Fetch(ctx context.Context, p *temis.Provider, period eocalc.DateRange) ([]string, error) {
	var months []time.Time
	seen := make(map[string]bool)
	for _, d := range period.Days() {
		key := d.Format("200601")
		if !seen[key] {
			seen[key] = true
			months = append(months, d)
		}
	}

	paths := make([]string, len(months))
	errs := make([]error, len(months))
	var wg sync.WaitGroup
	wg.Add(len(months))
	for i, m := range months {
		go func(i int, m time.Time) {
			defer wg.Done()
			paths[i], errs[i] = p.Ensure(ctx, m)
		}(i, m)
	}
	wg.Wait()

	var failed []string
	for i, err := range errs {
		if err != nil {
			logrus.WithError(err).WithField("month", months[i].Format("2006-01")).Error("fetching TEMIS data")
			failed = append(failed, months[i].Format("2006-01"))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return nil, fmt.Errorf("eocalcutil: fetching TEMIS data failed for %s: %w",
			strings.Join(failed, ", "), firstError(errs))
	}
	logrus.WithField("months", len(paths)).Info("TEMIS data available")
	return paths, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
