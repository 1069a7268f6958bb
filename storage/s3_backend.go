package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	xerrors "github.com/livepeer/retention-engine/errors"
)

// S3Backend is the secondary backend, grounded on the teacher's clients/s3.go
// raw aws-sdk-go usage rather than the go-tools/drivers abstraction.
type S3Backend struct {
	client *s3.S3
	bucket string
	prefix string
}

func NewS3Backend(bucket, prefix string) (*S3Backend, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &S3Backend{client: s3.New(sess), bucket: bucket, prefix: prefix}, nil
}

func (s *S3Backend) Name() string { return "secondary" }

func (s *S3Backend) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, xerrors.NewObjectNotFoundError("not found in secondary object store", err)
		}
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Backend) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.fullKey(key)),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Backend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	return req.Presign(ttl)
}

func (s *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	return err
}

func (s *S3Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNotFound(err error) bool {
	type awsErr interface {
		Code() string
	}
	if ae, ok := err.(awsErr); ok {
		return ae.Code() == s3.ErrCodeNoSuchKey || ae.Code() == s3.ErrCodeNoSuchBucket || ae.Code() == "NotFound"
	}
	return false
}
