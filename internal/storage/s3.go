package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ravikeerthi7606/edustream/internal/config"
)

const uriScheme = "s3://"

// ObjectAPI is the subset of the S3 client used to read upload sources.
type ObjectAPI interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// IsURI reports whether s names an S3 object.
func IsURI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// ParseURI splits s3://bucket/key into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("s3 source %q: expected %sbucket/key", uri, uriScheme)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 source %q: bucket and object key are required", uri)
	}
	return bucket, key, nil
}

// S3Source reads upload candidates from an S3-compatible object store.
type S3Source struct {
	client     ObjectAPI
	downloader *manager.Downloader
	tempDir    string
	logger     *slog.Logger
}

// NewS3Source configures a client for the provided object store.
func NewS3Source(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*S3Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3SourceFromClient(client, logger), nil
}

// NewS3SourceFromClient wraps an existing client.
func NewS3SourceFromClient(client ObjectAPI, logger *slog.Logger) *S3Source {
	if logger == nil {
		logger = slog.Default()
	}
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 8 * 1024 * 1024
		d.Concurrency = 4
	})
	return &S3Source{
		client:     client,
		downloader: downloader,
		logger:     logger.With(slog.String("component", "s3_source")),
	}
}

// RemoteObject is an S3 object's metadata. It satisfies the upload
// candidate contract so it can be validated before any bytes are transferred.
type RemoteObject struct {
	Bucket string
	Key    string
	size   int64
}

// Name returns the object's base name.
func (o RemoteObject) Name() string { return path.Base(o.Key) }

// Size returns the object's length in bytes.
func (o RemoteObject) Size() int64 { return o.size }

// Stat looks up the object named by uri.
func (s *S3Source) Stat(ctx context.Context, uri string) (RemoteObject, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return RemoteObject{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return RemoteObject{}, fmt.Errorf("s3 source head %s: %w", uri, err)
	}
	return RemoteObject{Bucket: bucket, Key: key, size: aws.ToInt64(out.ContentLength)}, nil
}

// Spool downloads obj to a temporary file. The caller must Remove it.
func (s *S3Source) Spool(ctx context.Context, obj RemoteObject) (*SpooledFile, error) {
	tmp, err := os.CreateTemp(s.tempDir, "edustream-*"+path.Ext(obj.Key))
	if err != nil {
		return nil, fmt.Errorf("s3 source: create temp file: %w", err)
	}

	n, err := s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("s3 source download s3://%s/%s: %w", obj.Bucket, obj.Key, err)
	}

	s.logger.Debug("spooled object", slog.String("bucket", obj.Bucket), slog.String("key", obj.Key), slog.Int64("bytes", n))
	return &SpooledFile{path: tmp.Name(), name: obj.Name(), size: n}, nil
}

// SpooledFile is a downloaded object kept in a temporary file.
type SpooledFile struct {
	path string
	name string
	size int64
}

// Name returns the original object's base name.
func (f *SpooledFile) Name() string { return f.name }

// Size returns the number of bytes downloaded.
func (f *SpooledFile) Size() int64 { return f.size }

// Open opens the temporary file for reading.
func (f *SpooledFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// Remove deletes the temporary file.
func (f *SpooledFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
