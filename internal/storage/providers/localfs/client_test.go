package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankilms/deckbridge/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return client
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("package bytes"))))

	reader, err := client.Download(ctx, "demo.apkg")
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "package bytes", string(content))
}

func TestUpload_OverwritesExistingBlob(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("v1"))))
	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("v2"))))

	content, err := storage.DownloadAll(ctx, client, "demo.apkg")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
}

func TestExists(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "demo.apkg")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("x"))))

	exists, err = client.Exists(ctx, "demo.apkg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("x"))))
	require.NoError(t, client.Delete(ctx, "demo.apkg"))

	exists, err := client.Exists(ctx, "demo.apkg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetMetadata(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("12345"))))

	info, err := client.GetMetadata(ctx, "demo.apkg")
	require.NoError(t, err)
	assert.Equal(t, "demo.apkg", info.ID)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.ModifiedAt.IsZero())
}

func TestPathTraversalIDsAreRejected(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "sub/dir", "/etc/passwd"} {
		err := client.Upload(ctx, id, bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, ErrInvalidID, "id %q must be rejected", id)

		_, err = client.Download(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q must be rejected", id)
	}
}

func TestUpload_LeavesNoStagingFilesBehind(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	client, err := NewClient(root)
	require.NoError(t, err)

	require.NoError(t, client.Upload(context.Background(), "demo.apkg", bytes.NewReader([]byte("x"))))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "demo.apkg", entries[0].Name())
}

func TestDownloadAll_DetectsTruncation(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	client, err := NewClient(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.Upload(ctx, "demo.apkg", bytes.NewReader([]byte("full content"))))

	content, err := storage.DownloadAll(ctx, client, "demo.apkg")
	require.NoError(t, err)
	assert.Equal(t, "full content", string(content))

	_, err = storage.DownloadAll(ctx, client, "missing.apkg")
	assert.Error(t, err)
}
