package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// BlobInfo contains metadata about a stored blob
type BlobInfo struct {
	ID         string
	Size       int64
	ModifiedAt time.Time
}

// Client defines the interface for blob storage operations. Deck
// packages are stored and fetched by opaque id; implementations must
// be large-file safe (streamed, not buffered whole).
type Client interface {
	// Download retrieves the contents of a blob
	Download(ctx context.Context, id string) (io.ReadCloser, error)

	// Upload stores content and returns the blob id
	Upload(ctx context.Context, id string, content io.Reader) error

	// Delete removes a blob
	Delete(ctx context.Context, id string) error

	// Exists checks if a blob exists
	Exists(ctx context.Context, id string) (bool, error)

	// GetMetadata retrieves blob info without downloading content
	GetMetadata(ctx context.Context, id string) (*BlobInfo, error)
}

// DownloadAll fetches a blob fully into memory and verifies the byte
// length against the stored metadata, to catch truncated transfers
// before an injection starts chewing on them.
func DownloadAll(ctx context.Context, client Client, id string) ([]byte, error) {
	info, err := client.GetMetadata(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob %s: %w", id, err)
	}

	reader, err := client.Download(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", id, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}

	if int64(len(content)) != info.Size {
		return nil, fmt.Errorf("blob %s truncated: got %d bytes, expected %d", id, len(content), info.Size)
	}

	return content, nil
}
