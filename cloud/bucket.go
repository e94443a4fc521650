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

// Package cloud opens the blob storage locations that EOCalc reads
// input data from and writes results to.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsBlob returns whether the given path refers to blob storage,
// i.e. whether it starts with 'gs://', 's3://' or 'file://'.
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// SplitURL splits a blob URL of the form 'provider://bucket/key' into
// the bucket name, suitable for OpenBucket, and the key within the bucket.
// File URLs without a host, such as 'file:///tmp/data/x', use the root
// of the local filesystem as the bucket.
func SplitURL(path string) (bucketName, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("cloud: parsing blob URL: %w", err)
	}
	if !IsBlob(path) {
		return "", "", fmt.Errorf("cloud: %s is not a blob URL", path)
	}
	return u.Scheme + "://" + u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// DefaultAWSRegion is the AWS region used for s3 buckets when
// AWS_REGION is not set. TEMIS mirrors are hosted in Europe.
const DefaultAWSRegion = "eu-central-1"

// opener opens the named bucket of one storage provider.
type opener func(ctx context.Context, name string) (*blob.Bucket, error)

var openers = map[string]opener{
	"file": openFileBucket,
	"gs":   openGSBucket,
	"s3":   openS3Bucket,
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'. Only the host
// part of bucketName names the bucket; any path is ignored.
// The accepted providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3
// or an S3 compatible store.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bucket: %w", err)
	}
	open, ok := openers[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("cloud: opening bucket %s: invalid provider %q", bucketName, u.Scheme)
	}
	b, err := open(ctx, u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bucket %s: %w", bucketName, err)
	}
	return b, nil
}

// openFileBucket treats name as a local directory. An empty name is the
// filesystem root.
func openFileBucket(_ context.Context, name string) (*blob.Bucket, error) {
	if name == "" {
		name = string(os.PathSeparator)
	}
	return fileblob.OpenBucket(name, nil)
}

// openGSBucket uses the Google application default credentials.
func openGSBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding Google Cloud credentials: %w", err)
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// S3Config returns the AWS configuration for s3 buckets, read from the
// environment. AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY hold the
// credentials. AWS_REGION defaults to DefaultAWSRegion. When
// AWS_S3_ENDPOINT is set, requests go to that endpoint with path style
// addressing, as S3 compatible stores such as MinIO expect.
func S3Config() *aws.Config {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = DefaultAWSRegion
	}
	c := aws.NewConfig().
		WithRegion(region).
		WithCredentials(credentials.NewEnvCredentials())
	if ep := os.Getenv("AWS_S3_ENDPOINT"); ep != "" {
		c = c.WithEndpoint(ep).WithS3ForcePathStyle(true)
	}
	return c
}

func openS3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	s, err := session.NewSession(S3Config())
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
