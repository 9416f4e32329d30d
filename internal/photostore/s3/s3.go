// Package s3 stores finding photos in an S3 bucket or any S3-compatible
// object store (MinIO, Ceph RGW).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/vbonduro/firecheck/internal/photostore"
)

type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Prefix is prepended to every object key, e.g. "photos/".
	Prefix string
}

type S3PhotoStore struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func NewS3PhotoStore(ctx context.Context, opts Options, logger *slog.Logger) (*S3PhotoStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := buildAWSConfig(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

func newWithClient(client *s3.Client, bucket, prefix string, logger *slog.Logger) *S3PhotoStore {
	return &S3PhotoStore{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3PhotoStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	// Buffer so the SDK gets a seekable body with a known length.
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, r); err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	key := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), photostore.MimeTypeToExt(mimeType))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Debug("photo stored", "bucket", s.bucket, "key", key, "bytes", buf.Len())
	return key, nil
}

func (s *S3PhotoStore) Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, "", photostore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}

	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" {
		mimeType = photostore.ExtToMimeType(path.Ext(storageKey))
	}
	return out.Body, mimeType, nil
}

// Delete removes the object. S3 deletes are idempotent, so a missing key is
// detected with a HEAD request first to keep ErrNotFound semantics.
func (s *S3PhotoStore) Delete(ctx context.Context, storageKey string) error {
	key := s.objectKey(storageKey)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFoundError(err) {
			return photostore.ErrNotFound
		}
		return fmt.Errorf("failed to check object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *S3PhotoStore) objectKey(storageKey string) string {
	return s.prefix + storageKey
}

func buildAWSConfig(ctx context.Context, opts Options) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
