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
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/eocalc"
	"github.com/spatialmodel/eocalc/methods/dummy"
	"github.com/spatialmodel/eocalc/methods/fluky"
	"github.com/spatialmodel/eocalc/methods/temis"
	"github.com/spf13/cast"
)

// Methods lists the names of the available emission estimation methods.
var Methods = []string{"temis", "fluky", "dummy"}

// temisMetrics registers the TEMIS metrics with the default registry
// the first time they are needed.
var temisMetrics = sync.OnceValue(temis.NewMetrics)

// NewCalculator returns the calculator for the method named by
// the Method option in cfg.
func NewCalculator(cfg *viper.Viper) (eocalc.Calculator, error) {
	switch m := strings.ToLower(strings.TrimSpace(cfg.GetString("Method"))); m {
	case "temis":
		p, err := providerFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		c := temis.NewMonthlyMeanAggregator(p)
		c.Metrics = temisMetrics()
		return c, nil
	case "fluky":
		return fluky.New(nil), nil
	case "dummy":
		return dummy.New(), nil
	default:
		return nil, fmt.Errorf("eocalcutil: invalid Method %q; valid options are %v", m, Methods)
	}
}

// providerFromConfig creates a TEMIS data provider from the
// TEMIS.* options.
func providerFromConfig(cfg *viper.Viper) (*temis.Provider, error) {
	retries, err := cast.ToIntE(cfg.Get("TEMIS.Retries"))
	if err != nil {
		return nil, fmt.Errorf("eocalcutil: invalid TEMIS.Retries: %w", err)
	}
	if retries < 0 {
		return nil, fmt.Errorf("eocalcutil: TEMIS.Retries must not be negative, got %d", retries)
	}
	p := temis.NewProvider(
		os.ExpandEnv(cfg.GetString("TEMIS.DataDir")),
		os.ExpandEnv(cfg.GetString("TEMIS.URL")),
		retries,
	)
	p.Metrics = temisMetrics()
	return p, nil
}

// LoadRegion reads the region at path, which can be a GeoJSON file
// (.geojson or .json) or a shapefile. Remote files are downloaded first.
// Shapefiles with a .prj file are transformed to longitude and latitude.
func LoadRegion(ctx context.Context, path string) (*eocalc.Region, error) {
	if path == "" {
		return nil, fmt.Errorf("eocalcutil: the Region option is required")
	}
	local, err := maybeDownload(ctx, path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(local)); ext {
	case ".geojson", ".json":
		f, err := os.Open(local)
		if err != nil {
			return nil, fmt.Errorf("eocalcutil: opening region: %w", err)
		}
		defer f.Close()
		return eocalc.ReadRegion(f)
	case ".shp":
		return readShpRegion(local)
	default:
		return nil, fmt.Errorf("eocalcutil: unsupported region file type %q", ext)
	}
}

// readShpRegion combines all polygons in a shapefile into one region.
func readShpRegion(path string) (*eocalc.Region, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("eocalcutil: opening region shapefile: %w", err)
	}
	defer d.Close()

	var ct proj.Transformer
	if _, err := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"); err == nil {
		sr, err := d.SR()
		if err != nil {
			return nil, fmt.Errorf("eocalcutil: reading region projection: %w", err)
		}
		longlat, err := proj.Parse("+proj=longlat +datum=WGS84")
		if err != nil {
			panic(err)
		}
		if ct, err = sr.NewTransform(longlat); err != nil {
			return nil, fmt.Errorf("eocalcutil: region projection: %w", err)
		}
	}

	var mp geom.MultiPolygon
	for {
		g, _, more := d.DecodeRowFields()
		if !more {
			break
		}
		if ct != nil {
			if g, err = g.Transform(ct); err != nil {
				return nil, fmt.Errorf("eocalcutil: transforming region: %w", err)
			}
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("eocalcutil: region shapefile holds %T, not polygons", g)
		}
		mp = append(mp, p.Polygons()...)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("eocalcutil: reading region shapefile: %w", err)
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("eocalcutil: region shapefile %s is empty", path)
	}
	return eocalc.NewRegion(mp), nil
}
