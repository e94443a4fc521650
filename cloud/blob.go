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

package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// NewReader opens the blob at the given URL for reading. Closing the
// returned reader also closes the bucket.
func NewReader(ctx context.Context, path string) (io.ReadCloser, error) {
	bucketName, key, err := SplitURL(path)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("cloud: reading blob key %s: %w", key, err)
	}
	return &bucketReader{Reader: r, bucket: bucket}, nil
}

type bucketReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (r *bucketReader) Close() error {
	err := r.Reader.Close()
	if berr := r.bucket.Close(); err == nil {
		err = berr
	}
	return err
}

// Download copies the blob at the given URL, together with the files
// that belong with it if it is a shapefile, into dir. It returns the
// local path of the main file.
func Download(ctx context.Context, path, dir string) (string, error) {
	files := ExpandShp(path)
	for _, f := range files {
		if err := copyToFile(ctx, f, filepath.Join(dir, filepath.Base(f))); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, filepath.Base(files[0])), nil
}

func copyToFile(ctx context.Context, path, local string) error {
	r, err := NewReader(ctx, path)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("cloud: creating file for download: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: downloading %s: %w", path, err)
	}
	return w.Close()
}

// Upload copies the local file at local, together with the files that
// belong with it if it is a shapefile, to the blob at the given URL.
func Upload(ctx context.Context, local, path string) error {
	locals, remotes := ExpandShp(local), ExpandShp(path)
	if len(locals) != len(remotes) {
		return fmt.Errorf("cloud: cannot upload %s to %s: file types differ", local, path)
	}
	for i := range locals {
		if err := uploadFile(ctx, locals[i], remotes[i]); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, local, path string) error {
	bucketName, key, err := SplitURL(path)
	if err != nil {
		return err
	}
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %w", local, err)
	}
	defer r.Close()
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("cloud: opening bucket to upload file '%s': %w", path, err)
	}
	defer bucket.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: uploading file '%s' to '%s': %w", local, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %w", key, err)
	}
	return nil
}

// ExpandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise.
func ExpandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
