// Package s3 publishes renders to an S3 compatible bucket.
package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
)

// partSize is the multipart chunk used for streaming uploads.
const partSize = 8 * 1024 * 1024

// Config holds S3 client configuration.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint targets S3 compatible services (MinIO, R2). Path-style
	// addressing is used when set.
	Endpoint string
}

// Client implements ports.StorageProvider on a single bucket.
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New creates an S3 client. Static keys are used when both are set,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.ValidationField("bucket", "s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		log.Info("s3 client using static credentials", "region", cfg.Region, "bucket", cfg.Bucket)
	} else {
		log.Warn("s3 client using default credential chain", "region", cfg.Region, "bucket", cfg.Bucket)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "s3.new", "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket string) *Client {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	return &Client{client: client, uploader: uploader, bucket: bucket}
}

func (c *Client) Provider() string { return "s3" }

// Bucket is the target bucket name.
func (c *Client) Bucket() string { return c.bucket }

// PutObject streams the reader through the multipart upload manager.
func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(in.ObjectKey),
		Body:   in.Reader,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "s3.put", "upload object")
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	})
	if isNotFound(err) {
		return nil, "", 0, errors.NotFound("object", objectKey)
	}
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "s3.get", "get object")
	}
	return out.Body, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

// Ping checks that the bucket exists and is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return errors.Wrap(err, "s3.ping", "head bucket")
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
