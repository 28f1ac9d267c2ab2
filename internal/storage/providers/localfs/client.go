// Package localfs implements the blob store over a local directory.
// Blob ids map to filenames; ids containing path separators are
// rejected so callers cannot escape the root.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ankilms/deckbridge/internal/storage"
)

var ErrInvalidID = errors.New("invalid blob id")

type Client struct {
	root string
}

func NewClient(root string) (*Client, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &Client{root: root}, nil
}

func (c *Client) path(id string) (string, error) {
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(c.root, id), nil
}

func (c *Client) Download(_ context.Context, id string) (io.ReadCloser, error) {
	path, err := c.path(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (c *Client) Upload(_ context.Context, id string, content io.Reader) error {
	path, err := c.path(id)
	if err != nil {
		return err
	}

	// Write to a temp file and rename, so readers never see a
	// half-written blob.
	tmp, err := os.CreateTemp(c.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to stage blob %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finish blob %s: %w", id, err)
	}

	return os.Rename(tmp.Name(), path)
}

func (c *Client) Delete(_ context.Context, id string) error {
	path, err := c.path(id)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (c *Client) Exists(_ context.Context, id string) (bool, error) {
	path, err := c.path(id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) GetMetadata(_ context.Context, id string) (*storage.BlobInfo, error) {
	path, err := c.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &storage.BlobInfo{
		ID:         id,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

var _ storage.Client = (*Client)(nil)
