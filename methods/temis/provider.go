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
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/eocalc/cloud"
)

// DefaultURL is the location TEMIS TROPOMI NO2 monthly means are
// downloaded from.
const DefaultURL = "https://d1qb6yzwaaq4he.cloudfront.net/tropomi/no2"

// DefaultDir is the local directory downloaded data is kept in.
const DefaultDir = "data/methods/temis/tropomi/no2/monthly_mean"

// ErrDataUnavailable is returned when the data for a month can neither
// be found locally nor retrieved.
var ErrDataUnavailable = errors.New("temis: data unavailable")

var gzipMagic = []byte{0x1f, 0x8b}

// Provider makes TEMIS monthly mean files available in a local
// directory, downloading and decompressing them on demand. It is safe
// for concurrent use: work for the same month is never done twice at
// the same time.
type Provider struct {
	// Dir is the local data directory.
	Dir string

	// URL is the base location of the remote files. It can be an
	// http(s) URL, a blob URL (file://, gs://, s3://) or a local
	// directory.
	URL string

	// Retries is the number of times a failed fetch is retried.
	Retries int

	Client  *http.Client
	Log     logrus.FieldLogger
	Metrics *Metrics

	once  sync.Once
	cache *requestcache.Cache
}

// NewProvider returns a provider that keeps files in dir and fetches
// missing files from url. Empty arguments are replaced by DefaultDir
// and DefaultURL.
func NewProvider(dir, url string, retries int) *Provider {
	if dir == "" {
		dir = DefaultDir
	}
	if url == "" {
		url = DefaultURL
	}
	return &Provider{
		Dir:     dir,
		URL:     url,
		Retries: retries,
		Client:  http.DefaultClient,
		Log:     logrus.StandardLogger(),
		Metrics: newMetrics(),
	}
}

// Path returns the local path of the file holding the monthly mean
// for the month of day.
func (p *Provider) Path(day time.Time) string {
	return filepath.Join(p.Dir, "no2_"+day.Format("200601")+".asc")
}

// RemotePath returns the remote location of the compressed file for
// the month of day.
func (p *Provider) RemotePath(day time.Time) string {
	return fmt.Sprintf("%s/%s/no2_%s.asc.gz", strings.TrimSuffix(p.URL, "/"), day.Format("2006/01"), day.Format("200601"))
}

type ensureResult struct {
	path string
	err  error
}

// Ensure makes sure the file for the month of day is in the local data
// directory and returns its path. Errors wrap ErrDataUnavailable.
func (p *Provider) Ensure(ctx context.Context, day time.Time) (string, error) {
	p.once.Do(func() {
		if p.Metrics == nil {
			p.Metrics = newMetrics()
		}
		// Errors are passed in the result because duplicate requests
		// are only released after a successful run.
		p.cache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			path, err := p.ensure(ctx, req.(time.Time))
			return ensureResult{path: path, err: err}, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate())
	})
	r, err := p.cache.NewRequest(ctx, day, day.Format("200601")).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	res := r.(ensureResult)
	return res.path, res.err
}

func (p *Provider) ensure(ctx context.Context, day time.Time) (string, error) {
	file := p.Path(day)
	log := p.log().WithFields(logrus.Fields{"month": day.Format("2006-01"), "file": file})
	if exists(file) {
		p.metrics().LocalFiles.Inc()
		return file, nil
	}
	unavailable := func(err error) error {
		return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, day.Format("2006-01"), err)
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", unavailable(err)
	}

	original := file + ".original.gz"
	if !exists(original) {
		if err := p.fetch(ctx, p.RemotePath(day), original, log); err != nil {
			return "", unavailable(err)
		}
	}

	// Some files are compressed twice.
	inner := file + ".gz"
	if err := p.gunzip(original, inner); err != nil {
		return "", unavailable(err)
	}
	gz, err := isGzip(inner)
	if err != nil {
		return "", unavailable(err)
	}
	if gz {
		if err := p.gunzip(inner, file); err != nil {
			return "", unavailable(err)
		}
		if err := os.Remove(inner); err != nil {
			log.WithError(err).Warn("removing intermediate file")
		}
	} else if err := os.Rename(inner, file); err != nil {
		return "", unavailable(err)
	}
	log.Info("TEMIS data available")
	return file, nil
}

// fetch copies the remote file at url to dst. A failed copy is retried
// p.Retries times, except when the server rejects the request.
func (p *Provider) fetch(ctx context.Context, url, dst string, log logrus.FieldLogger) error {
	log = log.WithField("url", url)
	log.Info("downloading TEMIS data")
	download := func() error {
		return writeAtomic(dst, func(w io.Writer) error {
			r, err := p.open(ctx, url)
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(w, r)
			return err
		})
	}

	var err error
	if p.Retries <= 0 {
		err = download()
	} else {
		// A rejected request ends the retries with a nil error and is
		// reported afterwards.
		var rejected error
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.Retries)), ctx)
		err = backoff.RetryNotify(
			func() error {
				err := download()
				if isClientError(err) {
					rejected = err
					return nil
				}
				return err
			},
			b,
			func(err error, d time.Duration) {
				log.WithError(err).Warnf("retrying in %v", d)
			},
		)
		if err == nil {
			err = rejected
		}
	}
	if err != nil {
		p.metrics().Downloads.WithLabelValues("error").Inc()
		return err
	}
	p.metrics().Downloads.WithLabelValues("success").Inc()
	return nil
}

// statusError is returned for HTTP responses other than 200 OK.
type statusError struct {
	url    string
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("temis: fetching %s: %s", e.url, e.status)
}

// isClientError reports whether err is a 4xx HTTP response, which
// repeating the request will not change.
func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}

func (p *Provider) open(ctx context.Context, url string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		client := p.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &statusError{url: url, code: resp.StatusCode, status: resp.Status}
		}
		return resp.Body, nil
	case cloud.IsBlob(url):
		return cloud.NewReader(ctx, url)
	default:
		return os.Open(url)
	}
}

// gunzip decompresses src into dst.
func (p *Provider) gunzip(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	err = writeAtomic(dst, func(w io.Writer) error {
		r, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("temis: decompressing %s: %w", src, err)
		}
		defer r.Close()
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("temis: decompressing %s: %w", src, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.metrics().Decompressions.Inc()
	return nil
}

// writeAtomic writes to a temporary file next to path and renames it
// to path once write succeeds.
func writeAtomic(path string, write func(w io.Writer) error) error {
	f, err := ioutil.TempFile(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func isGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	b := make([]byte, len(gzipMagic))
	if _, err := io.ReadFull(f, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(b, gzipMagic), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *Provider) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Provider) metrics() *Metrics { return p.Metrics }
