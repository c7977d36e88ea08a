// Package source opens artifact byte streams from local files, stdin, HTTP(S)
// URLs and S3 objects.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const STDIN = "-"

// Kind identifies where a location points
type Kind int

const (
	KindFile Kind = iota
	KindStdin
	KindHTTP
	KindS3
)

func (k Kind) String() string {
	switch k {
	case KindStdin:
		return "stdin"
	case KindHTTP:
		return "http"
	case KindS3:
		return "s3"
	default:
		return "file"
	}
}

// S3Options configures access to S3-compatible object storage
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Options configures Open
type Options struct {
	S3         S3Options
	HTTPClient *http.Client
	Stdin      io.Reader
}

// Classify reports the kind of a location
func Classify(location string) Kind {
	switch {
	case location == STDIN:
		return KindStdin
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return KindHTTP
	case strings.HasPrefix(location, "s3://"):
		return KindS3
	default:
		return KindFile
	}
}

// Open returns a reader for the artifact at location. The caller closes it.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	switch Classify(location) {
	case KindStdin:
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), nil
	case KindHTTP:
		return openHTTP(ctx, location, opts.HTTPClient)
	case KindS3:
		bucket, key, err := ParseS3(location)
		if err != nil {
			return nil, err
		}
		return openS3(ctx, bucket, key, opts.S3)
	default:
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", location, err)
		}
		return f, nil
	}
}

// ====================================================================================
// HTTP
// ====================================================================================

func openHTTP(ctx context.Context, url string, client *http.Client) (io.ReadCloser, error) {
	if client == nil {
		// No overall timeout, artifacts can be large; only the handshake is bounded
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "martifact")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d fetching %s: %s", resp.StatusCode, url, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// ====================================================================================
// S3
// ====================================================================================

// ParseS3 splits s3://bucket/key
func ParseS3(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %s", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location must be s3://bucket/key: %s", location)
	}
	return bucket, key, nil
}

// NewS3Client builds a client. With an endpoint set, path-style addressing is
// used so MinIO and similar services work.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func openS3(ctx context.Context, bucket, key string, opts S3Options) (io.ReadCloser, error) {
	client, err := NewS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s failed: %w", bucket, key, err)
	}
	return out.Body, nil
}
