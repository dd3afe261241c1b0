package utils

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

var ErrBlobNotFound = errors.New("blob not found")

// Blob identifies stored content. Hash is the backend's content address (IPFS
// CID, object key, or local file name).
type Blob struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
}

// BlobStore keeps uploaded bytes: public uploads and encrypted documents.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) (Blob, error)
	Get(ctx context.Context, hash string) ([]byte, error)
}

// ObjectKey builds a unique, URL-safe key from a user-supplied file name.
func ObjectKey(prefix, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := slug.Make(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	key := base + "-" + uuid.NewString() + ext
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key
}
