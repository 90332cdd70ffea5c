// Package s3 uploads objects to Amazon S3 or any S3-compatible endpoint.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"filerelay/internal/logging"
	"filerelay/internal/services"
)

// Options configures the client. An empty Endpoint targets AWS itself;
// empty keys fall back to the default AWS credential chain.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Logger    *slog.Logger
}

// Client wraps the S3 API for whole-object upserts.
type Client struct {
	api      *s3.Client
	uploader *manager.Uploader
	endpoint string
	logger   *slog.Logger
}

// New builds a client from opts.
func New(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "load config", "", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	var s3Opts []func(*s3.Options)
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	api := s3.NewFromConfig(awsCfg, s3Opts...)

	return &Client{
		api:      api,
		uploader: manager.NewUploader(api),
		endpoint: endpoint,
		logger:   logging.NewComponentLogger(opts.Logger, "s3"),
	}, nil
}

// EnsureContainer creates the bucket when it does not exist.
func (c *Client) EnsureContainer(ctx context.Context, bucket string) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return services.Wrap(services.ErrTransient, "s3", "head bucket", bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region := c.api.Options().Region; region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return services.Wrap(services.ErrConfiguration, "s3", "create bucket", bucket, err)
	}
	c.logger.Info("bucket created",
		logging.String("bucket", bucket),
		logging.String(logging.FieldEventType, "bucket_created"),
	)
	return nil
}

// UpsertObject uploads content under key. Without overwrite the write is
// conditional on the key being absent.
func (c *Client) UpsertObject(ctx context.Context, bucket, key string, content io.Reader, size int64, overwrite bool) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   content,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	var err error
	if overwrite {
		_, err = c.uploader.Upload(ctx, input)
	} else {
		input.IfNoneMatch = aws.String("*")
		_, err = c.api.PutObject(ctx, input)
	}
	if err != nil {
		if isPreconditionFailed(err) {
			return services.Wrap(services.ErrObjectExists, "s3", "put object", bucket+"/"+key, nil)
		}
		return services.Wrap(services.ErrTransient, "s3", "put object", fmt.Sprintf("%s/%s", bucket, key), err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
