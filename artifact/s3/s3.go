// Package s3 provides an AWS S3 backed implementation of core.ArtifactStore.
//
// Artifacts are laid out as "<prefix><sessionID>/<artifactID>" object keys so
// a single bucket can hold artifacts for many sessions (and, with distinct
// prefixes, many deployments). Credentials and region resolve through the
// default AWS config chain unless a client is injected.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cardassist/cardassist/artifact"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store persists session artifacts as S3 objects.
type Store struct {
	client S3API
	bucket string
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithClient overrides the S3 client, mainly for testing.
func WithClient(client S3API) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithPrefix scopes the store to keys under the given prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// NewStore creates an S3 backed artifact store for the given bucket.
func NewStore(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	s := &Store{bucket: bucket}
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

func (s *Store) key(sessionID, artifactID string) string {
	return s.prefix + sessionID + "/" + artifactID
}

// Save uploads (or overwrites) the artifact bytes for the given session and id.
func (s *Store) Save(sessionID, artifactID string, data []byte) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID, artifactID)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put artifact %s/%s: %w", sessionID, artifactID, err)
	}
	return nil
}

// Get downloads the artifact bytes or returns artifact.ErrNotFound.
func (s *Store) Get(sessionID, artifactID string) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID, artifactID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, artifact.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact %s/%s: %w", sessionID, artifactID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s/%s: %w", sessionID, artifactID, err)
	}
	return data, nil
}

// List returns the artifact ids stored for the session.
func (s *Store) List(sessionID string) ([]string, error) {
	sessionPrefix := s.prefix + sessionID + "/"
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(sessionPrefix),
	}

	ids := []string{}
	for {
		out, err := s.client.ListObjectsV2(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts for session %s: %w", sessionID, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			ids = append(ids, strings.TrimPrefix(key, sessionPrefix))
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	return ids, nil
}

// Delete removes the artifact if present or returns artifact.ErrNotFound.
func (s *Store) Delete(sessionID, artifactID string) error {
	key := s.key(sessionID, artifactID)

	// DeleteObject succeeds on missing keys, so probe first to keep the
	// ErrNotFound contract of the in-memory store.
	out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to check artifact %s/%s: %w", sessionID, artifactID, err)
	}
	found := false
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			found = true
			break
		}
	}
	if !found {
		return artifact.ErrNotFound
	}

	if _, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete artifact %s/%s: %w", sessionID, artifactID, err)
	}
	return nil
}
