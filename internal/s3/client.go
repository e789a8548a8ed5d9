package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

var ErrNoCredentials = errors.New("no AWS credentials provided")

type Client struct {
	s3Client *s3.Client
	bucket   string
	region   string
	endpoint string
}

func NewClient(ctx context.Context, region, bucket, accessKey, secretKey, endpoint string) (*Client, error) {
	var cfg aws.Config
	var err error

	if accessKey != "" && secretKey != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
	} else if os.Getenv("ECS_CONTAINER_METADATA_URI_V4") != "" {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region))
	} else {
		err = ErrNoCredentials
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		// retries are driven by the uploader so attempts can be counted
		o.RetryMaxAttempts = 1
	})

	return &Client{
		s3Client: s3Client,
		bucket:   bucket,
		region:   region,
		endpoint: strings.TrimRight(endpoint, "/"),
	}, nil
}

func (c *Client) Bucket() string { return c.bucket }

// PutObject stores body at key. Metadata entries become x-amz-meta-* headers.
func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := c.s3Client.PutObject(ctx, input)
	return err
}

// HeadBucket checks that the bucket is reachable with the configured
// credentials.
func (c *Client) HeadBucket(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	return err
}

// ObjectURL is the location of key, path style for custom endpoints and
// virtual hosted style for AWS.
func (c *Client) ObjectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if c.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, escaped)
}

var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
}

// IsPermanent reports whether err is an API error that retrying cannot fix.
func IsPermanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return permanentCodes[apiErr.ErrorCode()]
	}
	return false
}
