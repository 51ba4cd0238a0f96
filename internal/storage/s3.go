// Package storage persists recap documents in S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"

	"recaps/internal/types"
)

const contentTypeJSON = "application/json"

// S3API is the subset of *s3.Client the store needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options tune how objects are written.
type S3Options struct {
	CacheControl string
	Gzip         bool
}

// S3Store writes private JSON objects. The reference returned by Put is the
// object key, which is what artifacts record as their data URL.
type S3Store struct {
	client S3API
	bucket string
	opts   S3Options
	logger *slog.Logger

	writers sync.Pool
}

// NewS3Store returns a store over bucket.
func NewS3Store(client S3API, bucket string, opts S3Options, logger *slog.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		opts:   opts,
		logger: logger,
		writers: sync.Pool{
			New: func() any { return gzip.NewWriter(io.Discard) },
		},
	}
}

// Put uploads body under key, overwriting any previous object. Rewrites of
// the same key are how a retried page replaces a user's recap.
func (s *S3Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentTypeJSON),
		ACL:         s3types.ObjectCannedACLPrivate,
	}
	if s.opts.CacheControl != "" {
		in.CacheControl = aws.String(s.opts.CacheControl)
	}
	if s.opts.Gzip {
		compressed, err := s.compress(body)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalEncoding, "failed to compress recap", err)
		}
		body = compressed
		in.ContentEncoding = aws.String("gzip")
	}
	in.Body = bytes.NewReader(body)
	in.ContentLength = aws.Int64(int64(len(body)))

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamBlobStore, "failed to upload recap", err,
			map[string]any{"bucket": s.bucket, "key": key})
	}
	s.logger.DebugContext(ctx, "recap stored", "key", key, "bytes", len(body), "gzip", s.opts.Gzip)
	return key, nil
}

// Get downloads the object at ref, decompressing gzip-encoded objects.
func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamBlobStore, "recap object not found", err,
				map[string]any{"bucket": s.bucket, "key": ref})
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamBlobStore, "failed to download recap", err)
	}
	defer out.Body.Close()

	var r io.Reader = out.Body
	if aws.ToString(out.ContentEncoding) == "gzip" {
		zr, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalEncoding, "failed to open gzip recap", err)
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamBlobStore, fmt.Sprintf("failed to read recap %s", ref), err)
	}
	return body, nil
}

func (s *S3Store) compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := s.writers.Get().(*gzip.Writer)
	defer s.writers.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
