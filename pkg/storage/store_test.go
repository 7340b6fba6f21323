package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_UploadExistsDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "https://files.example.com/results/")
	require.NoError(t, err)

	url, err := store.Upload(ctx, "query-results/pg_1_abc.csv", []byte("id\n1\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/results/query-results/pg_1_abc.csv", url)

	data, err := os.ReadFile(filepath.Join(store.Dir(), "query-results", "pg_1_abc.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	exists, err := store.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, url))

	exists, err = store.Exists(ctx, url)
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, url))
}

func TestFileStore_DefaultsToFileURL(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "a.csv", []byte("x"), "text/csv")
	require.NoError(t, err)
	assert.Contains(t, url, "file://")

	path, err := store.Path(url)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestFileStore_RejectsBadNamesAndForeignURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "https://files.example.com")
	require.NoError(t, err)

	for _, name := range []string{"", "/etc/passwd", "../escape.csv", "a/../../b.csv"} {
		_, err := store.Upload(ctx, name, []byte("x"), "text/csv")
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	_, err = store.Exists(ctx, "https://elsewhere.example.com/a.csv")
	assert.ErrorIs(t, err, ErrForeignURL)

	err = store.Delete(ctx, "https://files.example.com/../a.csv")
	assert.ErrorIs(t, err, ErrInvalidName)
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.objects[*in.Key] = data

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)

	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}}
	store := NewS3StoreWithClient(client, S3StoreConfig{Bucket: "results", Region: "eu-west-1", Prefix: "/qg/"})

	url, err := store.Upload(ctx, "query-results/x.csv", []byte("a\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "https://results.s3.eu-west-1.amazonaws.com/qg/query-results/x.csv", url)
	assert.Contains(t, client.objects, "qg/query-results/x.csv")

	exists, err := store.Exists(ctx, url)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, url))

	exists, err = store.Exists(ctx, url)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestS3Store_CustomEndpointAndPutFailure(t *testing.T) {
	t.Parallel()

	client := &fakeS3{objects: map[string][]byte{}, putErr: errors.New("access denied")}
	store := NewS3StoreWithClient(client, S3StoreConfig{Bucket: "b", Endpoint: "http://minio:9000/"})

	_, err := store.Upload(context.Background(), "a.csv", []byte("x"), "text/csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, "http://minio:9000/b", store.publicURL)
}
