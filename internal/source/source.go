// Package source fetches run inputs from local paths, HTTP(S) URLs or S3
// and stores run outputs locally or on S3.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 client. Credentials fall back to the default
// AWS chain when AccessKeyID is empty.
type S3Config struct {
	Region          string
	Endpoint        string // optional, e.g. MinIO
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// Fetcher resolves input locations to local files.
type Fetcher struct {
	client *http.Client
	s3     *s3.Client
	dir    string // Directory for downloaded files
	logger *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for HTTP downloads and S3 calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New creates a Fetcher storing downloads under dir (the system temp dir when empty).
func New(ctx context.Context, cfg S3Config, dir string, logger *slog.Logger, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{client: &http.Client{}, dir: dir, logger: logger}
	for _, opt := range opts {
		opt(f)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	f.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = f.client
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return f, nil
}

// IsRemote reports whether location names an HTTP(S) or S3 resource.
func IsRemote(location string) bool {
	switch scheme(location) {
	case "http", "https", "s3":
		return true
	}
	return false
}

func scheme(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Fetch returns a local path holding the content at location. Local paths
// are returned unchanged. cleanup removes any downloaded copy.
func (f *Fetcher) Fetch(ctx context.Context, location string) (localPath string, cleanup func(), err error) {
	noop := func() {}
	switch scheme(location) {
	case "http", "https":
		p, err := f.download(ctx, location)
		if err != nil {
			return "", noop, err
		}
		return p, func() { os.Remove(p) }, nil
	case "s3":
		bucket, key, err := splitS3(location)
		if err != nil {
			return "", noop, err
		}
		p, err := f.getObject(ctx, bucket, key)
		if err != nil {
			return "", noop, err
		}
		return p, func() { os.Remove(p) }, nil
	default:
		return location, noop, nil
	}
}

func (f *Fetcher) download(ctx context.Context, location string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	f.logger.Info("downloading input", "url", location)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: unexpected status: %d", location, resp.StatusCode)
	}

	u, _ := url.Parse(location)
	return f.saveTemp(resp.Body, path.Base(u.Path))
}

func (f *Fetcher) getObject(ctx context.Context, bucket, key string) (string, error) {
	f.logger.Info("downloading input", "bucket", bucket, "key", key)
	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return f.saveTemp(out.Body, path.Base(key))
}

// saveTemp copies r to a new file in the download dir, keeping the extension of name.
func (f *Fetcher) saveTemp(r io.Reader, name string) (string, error) {
	if f.dir != "" {
		if err := os.MkdirAll(f.dir, 0755); err != nil {
			return "", fmt.Errorf("create dir: %w", err)
		}
	}
	tmpFile, err := os.CreateTemp(f.dir, "input-*"+path.Ext(name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write file: %w", err)
	}

	f.logger.Info("input downloaded",
		"path", filepath.Base(tmpFile.Name()),
		"size_kb", fmt.Sprintf("%.1f", float64(written)/1024),
	)
	return tmpFile.Name(), nil
}

// Put stores data at location, a local path or an s3:// URL.
func (f *Fetcher) Put(ctx context.Context, location string, data []byte, contentType string) error {
	switch scheme(location) {
	case "s3":
		bucket, key, err := splitS3(location)
		if err != nil {
			return err
		}
		input := &s3.PutObjectInput{Bucket: &bucket, Key: &key, Body: bytes.NewReader(data)}
		if contentType != "" {
			input.ContentType = &contentType
		}
		if _, err := f.s3.PutObject(ctx, input); err != nil {
			return fmt.Errorf("put %s: %w", location, err)
		}
		f.logger.Info("output uploaded", "bucket", bucket, "key", key)
		return nil
	case "http", "https":
		return fmt.Errorf("put %s: writing to HTTP locations is not supported", location)
	default:
		if dir := filepath.Dir(location); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
		}
		if err := os.WriteFile(location, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", location, err)
		}
		return nil
	}
}

func splitS3(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", location, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return bucket, key, nil
}
