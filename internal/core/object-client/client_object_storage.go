package objectclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	cfg "github.com/markdave123-py/contexta-datasets/internal/config"
	"github.com/markdave123-py/contexta-datasets/internal/core"
)

type S3Client struct {
	client     *s3.Client
	downloader *manager.Downloader
	region     string
}

func NewS3Client(ctx context.Context, cfg *cfg.Config, log zerolog.Logger) (*S3Client, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Info().Str("region", cfg.AwsRegion).Msg("s3 client configured")

	return &S3Client{
		client:     client,
		downloader: manager.NewDownloader(client),
		region:     cfg.AwsRegion,
	}, nil
}

// Load downloads the object addressed by an s3:// or amazonaws.com URL.
func (c *S3Client) Load(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, ok := parseS3URL(locator)
	if !ok {
		return nil, &core.FetchError{Locator: locator, Err: fmt.Errorf("not an s3 url")}
	}
	return c.GetFile(ctx, bucket, key)
}

// GetFile downloads bucket/key into memory with the transfer manager.
func (c *S3Client) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		locator := "s3://" + bucket + "/" + key
		return nil, &core.FetchError{Locator: locator, NotFound: isNotFound(err), Err: fmt.Errorf("s3 get failed: %w", err)}
	}
	return buf.Bytes(), nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &noBucket) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// parseS3URL extracts the bucket and key from s3://bucket/key, a
// virtual-hosted URL (https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf)
// or a path-style URL (https://s3.us-east-2.amazonaws.com/my-bucket/path/to/file.pdf).
func parseS3URL(raw string) (bucket, key string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	path := strings.TrimPrefix(u.Path, "/")

	if u.Scheme == "s3" {
		return u.Host, path, path != ""
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", false
	}

	host := u.Hostname()
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return "", "", false
	}
	if strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	if i := strings.Index(host, ".s3"); i > 0 && path != "" {
		return host[:i], path, true
	}
	return "", "", false
}
