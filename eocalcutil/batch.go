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
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/eocalc"
	"github.com/spatialmodel/eocalc/cloud"
)

// Batch is a set of regions to estimate emissions for.
type Batch struct {
	Region []BatchRegion
}

// BatchRegion is a region in a batch file. Start and End override the
// period of the batch for this region when they are set; they can be
// TOML dates or strings.
type BatchRegion struct {
	Name       string
	File       string
	Start, End interface{}
}

// ReadBatch reads a batch file in TOML format. Relative region file
// paths are interpreted relative to the directory of the batch file.
func ReadBatch(path string) (*Batch, error) {
	b := new(Batch)
	if _, err := toml.DecodeFile(path, b); err != nil {
		return nil, fmt.Errorf("eocalcutil: reading batch file: %w", err)
	}
	if len(b.Region) == 0 {
		return nil, fmt.Errorf("eocalcutil: batch file %s does not list any regions", path)
	}
	names := make(map[string]bool)
	for i, r := range b.Region {
		if r.Name == "" || r.File == "" {
			return nil, fmt.Errorf("eocalcutil: region %d in batch file %s needs a Name and a File", i+1, path)
		}
		if names[r.Name] {
			return nil, fmt.Errorf("eocalcutil: duplicate region name %q in batch file %s", r.Name, path)
		}
		names[r.Name] = true
		if isLocal(r.File) && !filepath.IsAbs(r.File) {
			b.Region[i].File = filepath.Join(filepath.Dir(path), r.File)
		}
	}
	return b, nil
}

func isLocal(path string) bool {
	return !cloud.IsBlob(path) && !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://")
}

// Run estimates emissions for each region in turn. start and end give
// the period for regions that do not set their own. The outputs of each
// region are written to outputFile and gridFile with the region name
// added before the file extension. Regions that fail are logged and
// skipped, and an error naming them is returned at the end.
func (b *Batch) Run(ctx context.Context, calc eocalc.Calculator, start, end interface{}, pollutant eocalc.Pollutant, outputFile, gridFile string) error {
	var failed []string
	var firstErr error
	for _, r := range b.Region {
		log := logrus.WithField("region", r.Name)
		if err := b.runRegion(ctx, calc, r, start, end, pollutant, outputFile, gridFile); err != nil {
			log.WithError(err).Error("estimating emissions")
			failed = append(failed, r.Name)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Info("region done")
	}
	if firstErr != nil {
		return fmt.Errorf("eocalcutil: batch failed for regions %s: %w", strings.Join(failed, ", "), firstErr)
	}
	return nil
}

func (b *Batch) runRegion(ctx context.Context, calc eocalc.Calculator, r BatchRegion, start, end interface{}, pollutant eocalc.Pollutant, outputFile, gridFile string) error {
	if r.Start != nil {
		start = r.Start
	}
	if r.End != nil {
		end = r.End
	}
	period, err := eocalc.NewDateRange(start, end)
	if err != nil {
		return err
	}
	region, err := LoadRegion(ctx, r.File)
	if err != nil {
		return err
	}
	_, err = Run(ctx, calc, region, period, pollutant, regionPath(outputFile, r.Name), regionPath(gridFile, r.Name))
	return err
}

// regionPath inserts "_name" before the extension of path.
func regionPath(path, name string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + name + ext
}
