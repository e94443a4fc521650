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
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/eocalc/cloud"
)

// maybeDownload checks if the input is an existing file locally.
// If not, and it is an http(s) or blob URL, it downloads the file
// into a temporary directory and returns the path to the downloaded
// file. For shapefiles, the associated files are downloaded too.
func maybeDownload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return downloadHTTP(ctx, path)
	}
	if cloud.IsBlob(path) {
		dir, err := ioutil.TempDir("", "eocalc")
		if err != nil {
			return "", fmt.Errorf("eocalcutil: creating temporary download directory: %w", err)
		}
		return cloud.Download(ctx, path, dir)
	}
	return path, nil
}

// downloadHTTP downloads a file from the specified URL and returns
// the path to the downloaded file.
func downloadHTTP(ctx context.Context, path string) (string, error) {
	dir, err := ioutil.TempDir("", "eocalc")
	if err != nil {
		return "", fmt.Errorf("eocalcutil: creating temporary download directory: %w", err)
	}
	fnames := cloud.ExpandShp(path)
	for _, fname := range fnames {
		if err := getHTTP(ctx, fname, filepath.Join(dir, filepath.Base(fname))); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

func getHTTP(ctx context.Context, url, local string) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("eocalcutil: downloading %s: %w", url, err)
	}
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("eocalcutil: downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eocalcutil: downloading %s: %s", url, resp.Status)
	}
	w, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("eocalcutil: creating file for download: %w", err)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		w.Close()
		return fmt.Errorf("eocalcutil: downloading %s: %w", url, err)
	}
	return w.Close()
}
