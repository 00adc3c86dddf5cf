package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tanq16/rangeload/internal/utils"
)

// S3API is the subset of the S3 client used for ranged reads.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	client S3API
	bucket string
	key    string
}

func NewS3Source(client S3API, rawURL string) (*S3Source, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	return &S3Source{client: client, bucket: bucket, key: key}, nil
}

func ParseS3URL(rawURL string) (string, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrInvalidURL, err)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: not an S3 URL: %s", utils.ErrInvalidURL, rawURL)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if parsed.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: S3 URL must name an object as s3://bucket/key: %s", utils.ErrInvalidURL, rawURL)
	}
	return parsed.Host, key, nil
}

func (s *S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func (s *S3Source) Probe(ctx context.Context) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("error accessing S3 object: %w", err)
	}
	if out.ContentLength == nil {
		return 0, ErrNoContentLength
	}
	return *out.ContentLength, nil
}

func (s *S3Source) OpenRange(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading S3 object range: %w", err)
	}
	if out.ContentRange == nil && start != 0 {
		out.Body.Close()
		return nil, ErrRangeIgnored
	}
	return out.Body, nil
}

// s3Clients loads the AWS configuration once, on the first s3:// URL.
type s3Clients struct {
	cfg    utils.S3Config
	mu     sync.Mutex
	client *s3.Client
}

func newS3Clients(cfg utils.S3Config) *s3Clients {
	return &s3Clients{cfg: cfg}
}

func (c *s3Clients) get(ctx context.Context) (*s3.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if c.cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.cfg.Profile))
	}
	if c.cfg.Region != "" {
		opts = append(opts, config.WithRegion(c.cfg.Region))
	}
	if c.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	endpoint := c.cfg.Endpoint
	c.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return c.client, nil
}
