package s3

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardassist/cardassist/artifact"
	"github.com/cardassist/cardassist/core"
)

var _ core.ArtifactStore = (*Store)(nil)

// fakeS3 is an in-memory S3API for tests. Keys map to raw object bytes.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(params.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func TestNewStore_RequiresBucket(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestStore_SaveGet(t *testing.T) {
	fake := newFakeS3()
	store, err := NewStore(context.Background(), "artifacts", WithClient(fake), WithPrefix("cardassist"))
	require.NoError(t, err)

	require.NoError(t, store.Save("sess-1", "reports/r1.json", []byte(`{"total":42}`)))
	assert.Contains(t, fake.objects, "cardassist/sess-1/reports/r1.json")

	data, err := store.Get("sess-1", "reports/r1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"total":42}`, string(data))
}

func TestStore_GetMissing(t *testing.T) {
	store, err := NewStore(context.Background(), "artifacts", WithClient(newFakeS3()))
	require.NoError(t, err)

	_, err = store.Get("sess-1", "missing")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestStore_ListScopedToSession(t *testing.T) {
	fake := newFakeS3()
	store, err := NewStore(context.Background(), "artifacts", WithClient(fake))
	require.NoError(t, err)

	require.NoError(t, store.Save("sess-1", "a1", []byte("1")))
	require.NoError(t, store.Save("sess-1", "a2", []byte("2")))
	require.NoError(t, store.Save("sess-2", "b1", []byte("3")))

	ids, err := store.List("sess-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	empty, err := store.List("sess-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Delete(t *testing.T) {
	fake := newFakeS3()
	store, err := NewStore(context.Background(), "artifacts", WithClient(fake))
	require.NoError(t, err)

	require.NoError(t, store.Save("sess-1", "a1", []byte("1")))
	require.NoError(t, store.Delete("sess-1", "a1"))
	assert.NotContains(t, fake.objects, "sess-1/a1")

	assert.ErrorIs(t, store.Delete("sess-1", "a1"), artifact.ErrNotFound)
}
