package upload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKey_SanitizesFilename(t *testing.T) {
	key := Key("proj-1", "../../etc/My Clip?.mp4")

	assert.True(t, strings.HasPrefix(key, "proj-1/"), key)
	assert.True(t, strings.HasSuffix(key, "_My_Clip_.mp4"), key)
	assert.NotContains(t, key, "..")
	assert.True(t, ValidKey(key))
}

func TestKey_EmptyFilename(t *testing.T) {
	assert.True(t, strings.HasSuffix(Key("p", ""), "_upload.bin"))
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"p/a.mp4", true},
		{"", false},
		{"/abs", false},
		{"p/../x", false},
		{"p//x", false},
		{"./x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidKey(tt.key), tt.key)
	}
}

func TestLocalStore_PutOpenDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := s.Put(ctx, "p1/abc_clip.mp4", strings.NewReader("frames"), 6, "")
	require.NoError(t, err)
	assert.Equal(t, "uploads/p1/abc_clip.mp4", obj.URI)
	assert.Equal(t, int64(6), obj.Size)
	assert.True(t, s.Owns(obj.URI))

	onDisk, err := os.ReadFile(filepath.Join(root, "p1", "abc_clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "frames", string(onDisk))

	rc, info, err := s.Open(ctx, obj.URI)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "frames", string(data))
	assert.Equal(t, int64(6), info.Size)

	require.NoError(t, s.Delete(ctx, obj.URI))
	_, _, err = s.Open(ctx, obj.URI)
	assert.ErrorIs(t, err, ErrNotExist)
	assert.NoError(t, s.Delete(ctx, obj.URI), "deleting twice is not an error")
}

func TestLocalStore_UnknownSize(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), discardLogger())
	require.NoError(t, err)

	obj, err := s.Put(context.Background(), "p/x.wav", strings.NewReader("abcd"), -1, "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, int64(4), obj.Size)
	assert.Equal(t, "audio/wav", obj.ContentType)
}

func TestLocalStore_TruncatedUploadLeavesNothing(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, discardLogger())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "p/x.mp4", strings.NewReader("abc"), 10, "")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "p"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_CanceledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), discardLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Put(ctx, "p/x.mp4", strings.NewReader("abc"), -1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStore_RejectsForeignAndTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = s.Open(ctx, "s3://bucket/key")
	assert.ErrorIs(t, err, ErrNotOwned)
	_, _, err = s.Open(ctx, "uploads/../secret")
	assert.Error(t, err)
	_, err = s.Put(ctx, "../escape", strings.NewReader("x"), 1, "")
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, ok := ParseS3URI("s3://media/p1/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "p1/a.mp4", key)

	for _, bad := range []string{"uploads/p1/a.mp4", "s3://", "s3://media", "s3://media/", "http://x/y"} {
		_, _, ok := ParseS3URI(bad)
		assert.False(t, ok, bad)
	}
}

func TestNewMinIOStore_RequiresFields(t *testing.T) {
	_, err := NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_key")
	assert.Contains(t, err.Error(), "bucket")
}

func TestMinIOStore_Owns(t *testing.T) {
	s, err := NewMinIOStore(MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "framecut",
	}, discardLogger())
	require.NoError(t, err)

	assert.True(t, s.Owns("s3://framecut/p/a.mp4"))
	assert.False(t, s.Owns("s3://other/p/a.mp4"))
	assert.False(t, s.Owns("s3://framecut/p/../a.mp4"))
	assert.False(t, s.Owns("uploads/p/a.mp4"))
	assert.Equal(t, "s3://framecut/p/a.mp4", s.uri("p/a.mp4"))
}

func TestLocalStore_Locate(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, discardLogger())
	require.NoError(t, err)

	p, err := s.Locate(context.Background(), "uploads/p/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "p", "a.mp4"), p)

	_, err = s.Locate(context.Background(), "s3://bucket/a.mp4")
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestMinIOStore_LocatePresigns(t *testing.T) {
	s, err := NewMinIOStore(MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "framecut",
		Region:    "us-east-1",
	}, discardLogger())
	require.NoError(t, err)

	u, err := s.Locate(context.Background(), "s3://framecut/p/a.mp4")
	require.NoError(t, err)
	assert.Contains(t, u, "http://localhost:9000/framecut/p/a.mp4?")
	assert.Contains(t, u, "X-Amz-Signature=")

	_, err = s.Locate(context.Background(), "s3://other/p/a.mp4")
	assert.ErrorIs(t, err, ErrNotOwned)
}
