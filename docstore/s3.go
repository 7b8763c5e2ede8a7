package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads documents from an S3 bucket, optionally under a key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Client overrides the S3 client, mainly for testing.
func WithS3Client(client S3API) S3Option {
	return func(s *S3Store) {
		s.client = client
	}
}

// WithPrefix scopes the store to keys under the given prefix.
func WithPrefix(prefix string) S3Option {
	return func(s *S3Store) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// NewS3Store creates an S3 backed document store. Credentials and region are
// resolved from the default AWS config chain unless a client is injected.
func NewS3Store(ctx context.Context, bucket string, opts ...S3Option) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	s := &S3Store{bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}

	return s, nil
}

// List returns metadata for all objects under the store's prefix.
func (s *S3Store) List(ctx context.Context) ([]Document, error) {
	var docs []Document

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", s.bucket, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}

			name := strings.TrimPrefix(key, s.prefix)
			doc := Document{
				Name:        name,
				Size:        aws.ToInt64(obj.Size),
				ContentType: ContentTypeFor(name),
			}
			if obj.LastModified != nil {
				doc.LastModified = *obj.LastModified
			}
			docs = append(docs, doc)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	return docs, nil
}

// Get downloads a single document.
func (s *S3Store) Get(ctx context.Context, name string) ([]byte, *Document, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to get object %s: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}

	doc := &Document{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: ContentTypeFor(name),
	}
	if out.LastModified != nil {
		doc.LastModified = *out.LastModified
	}

	return data, doc, nil
}
