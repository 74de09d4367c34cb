package loaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kjk/pckstore/pck"
	"github.com/kjk/pckstore/u"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures access to s3-compatible storage
type S3Config struct {
	Endpoint string
	Access   string
	Secret   string
	Region   string
	// Secure uses https
	Secure bool
}

// s3Addr is a parsed s3://bucket/prefix
type s3Addr struct {
	Bucket string
	Prefix string
}

func parseS3Path(s string) (*s3Addr, error) {
	rest, ok := strings.CutPrefix(s, "s3://")
	if !ok {
		return nil, fmt.Errorf("%w: '%s' is not a s3 path", pck.ErrFormat, s)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: '%s' has no bucket", pck.ErrFormat, s)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Addr{Bucket: bucket, Prefix: prefix}, nil
}

// S3RawLoader reads objects under a prefix in a bucket.
// Like DirRawLoader it sees objects up to one "directory" deep.
// Compressed objects are decompressed by Get, based on extension.
type S3RawLoader struct {
	keyFinder
	path   string
	addr   *s3Addr
	conf   *S3Config
	client *minio.Client
}

var _ RawLoader = &S3RawLoader{}

func ctx() context.Context {
	return context.Background()
}

// NewS3RawLoader lists objects at path s3://bucket/prefix
func NewS3RawLoader(path string, opts *RawOptions) (*S3RawLoader, error) {
	addr, err := parseS3Path(path)
	if err != nil {
		return nil, err
	}
	if opts == nil || opts.S3 == nil {
		return nil, fmt.Errorf("%w: no s3 config for '%s'", pck.ErrPathAccess, path)
	}
	l := &S3RawLoader{path: path, addr: addr, conf: opts.S3}
	if err = l.Open(); err != nil {
		opts.logger().Error("failed to connect", "path", path, "error", err)
		return nil, err
	}
	var keys []string
	lo := minio.ListObjectsOptions{
		Prefix:    addr.Prefix,
		Recursive: true,
	}
	for oi := range l.client.ListObjects(ctx(), addr.Bucket, lo) {
		if oi.Err != nil {
			opts.logger().Error("failed to list objects", "path", path, "error", oi.Err)
			return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, oi.Err)
		}
		key := strings.TrimPrefix(oi.Key, addr.Prefix)
		if key == "" || strings.HasSuffix(key, "/") || strings.Count(key, "/") > 1 {
			continue
		}
		keys = append(keys, key)
	}
	keys = opts.filterKeys(keys)
	sort.Strings(keys)
	l.keys = keys
	return l, nil
}

func (l *S3RawLoader) Open() error {
	if l.client != nil {
		return nil
	}
	c := l.conf
	if c.Endpoint == "" || c.Access == "" || c.Secret == "" {
		return errors.New("must provide endpoint, access and secret in s3 config")
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: c.Secure,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	found, err := mc.BucketExists(ctx(), l.addr.Bucket)
	if err != nil {
		return fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	if !found {
		return fmt.Errorf("%w: bucket '%s' doesn't exist", pck.ErrPathAccess, l.addr.Bucket)
	}
	l.client = mc
	return nil
}

// Close drops the client. minio client has nothing to release.
func (l *S3RawLoader) Close() error {
	l.client = nil
	return nil
}

func (l *S3RawLoader) Path() string { return l.path }
func (l *S3RawLoader) Type() string { return TypeS3 }

func (l *S3RawLoader) Get(key string) (io.ReadCloser, error) {
	if !l.has(key) {
		return nil, errNoKey(key, l.path)
	}
	if err := l.Open(); err != nil {
		return nil, err
	}
	obj, err := l.client.GetObject(ctx(), l.addr.Bucket, l.addr.Prefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pck.ErrPathAccess, err)
	}
	return u.DecompressStream(obj, key)
}

func (l *S3RawLoader) MarshalJSON() ([]byte, error) {
	return marshalHandoff(TypeS3, l.path)
}
