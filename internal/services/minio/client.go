// Package minio uploads objects to a MinIO server.
package minio

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"filerelay/internal/logging"
	"filerelay/internal/services"
)

// Options configures the client. Endpoint is host:port; a URL is accepted
// and its scheme decides TLS when UseSSL is unset.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Logger    *slog.Logger
}

// Client wraps a minio.Client for whole-object upserts.
type Client struct {
	api    *minio.Client
	region string
	logger *slog.Logger
}

// New builds a client from opts.
func New(opts Options) (*Client, error) {
	host, secure, err := splitEndpoint(opts.Endpoint, opts.UseSSL)
	if err != nil {
		return nil, err
	}
	api, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "minio", "init client", host, err)
	}
	return &Client{
		api:    api,
		region: opts.Region,
		logger: logging.NewComponentLogger(opts.Logger, "minio"),
	}, nil
}

// EnsureContainer creates the bucket if it doesn't exist.
func (c *Client) EnsureContainer(ctx context.Context, bucket string) error {
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "minio", "bucket exists", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return services.Wrap(services.ErrConfiguration, "minio", "make bucket", bucket, err)
	}
	c.logger.Info("bucket created",
		logging.String("bucket", bucket),
		logging.String(logging.FieldEventType, "bucket_created"),
	)
	return nil
}

// UpsertObject uploads content under key. Without overwrite an existing key
// is reported as services.ErrObjectExists.
func (c *Client) UpsertObject(ctx context.Context, bucket, key string, content io.Reader, size int64, overwrite bool) error {
	if !overwrite {
		_, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return services.Wrap(services.ErrObjectExists, "minio", "put object", bucket+"/"+key, nil)
		}
		if !isNotFound(err) {
			return services.Wrap(services.ErrTransient, "minio", "stat object", bucket+"/"+key, err)
		}
	}

	info, err := c.api.PutObject(ctx, bucket, key, content, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "minio", "put object", bucket+"/"+key, err)
	}
	c.logger.Debug("object uploaded",
		logging.String(logging.FieldObjectKey, key),
		logging.Int64("bytes", info.Size),
	)
	return nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, services.Wrap(services.ErrConfiguration, "minio", "init client", "endpoint is empty", nil)
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), useSSL, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "", false, services.Wrap(services.ErrConfiguration, "minio", "init client", "invalid endpoint "+endpoint, err)
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}
