package importer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FileBackend reads import documents from the local filesystem.
// Accepts plain paths and file:// URLs.
type FileBackend struct{}

func (FileBackend) Open(_ context.Context, rawURL string, _ map[string]any) (io.ReadCloser, error) {
	path := strings.TrimPrefix(rawURL, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file backend: %w", err)
	}
	return f, nil
}

// S3Config holds the connection settings for an S3-compatible store.
// A custom Endpoint switches the client to path-style addressing, for
// MinIO and similar services.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// S3Backend reads import documents from s3://bucket/key URLs.
type S3Backend struct {
	client *s3.Client
}

// NewS3Backend builds the S3 client once; every Open reuses it.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: load config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := cfg.Endpoint
		if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
			endpoint = u.Host
		}
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, endpoint))
			o.UsePathStyle = true
		})
	}

	return &S3Backend{client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}

func (b *S3Backend) Open(ctx context.Context, rawURL string, _ map[string]any) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: parse %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("s3 backend: %q is not an s3://bucket/key URL", rawURL)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("s3 backend: %q has no object key", rawURL)
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 backend: get s3://%s/%s: %w", u.Host, key, err)
	}
	return out.Body, nil
}
