// Package blobstore keeps uploaded files (photos, signatures, legal
// documents) outside the relational store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

var ErrNotFound = errors.New("blob not found")

// Store persists blobs by key.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ContentKey returns a content-addressed key of the form <prefix>/<yyyy>/<hash>.<ext>.
func ContentKey(prefix, ext string, data []byte, now time.Time) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "misc"
	}
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	sum := xxh3.Hash128(data).Bytes()
	return path.Join(prefix, fmt.Sprintf("%04d", now.UTC().Year()), fmt.Sprintf("%x.%s", sum[:], ext))
}

// ExtensionForMime maps the upload mime types accepted by the API to file extensions.
func ExtensionForMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "application/pdf":
		return "pdf"
	default:
		return "bin"
	}
}

func validKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}
