// Package storage holds answer images. The filesystem store serves local
// development; the GCS store is used in deployments.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var ErrInvalidKey = errors.New("invalid blob key")

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanKey normalises a key to a slash-separated relative path and rejects
// keys that would escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	c := strings.TrimPrefix(path.Clean("/"+key), "/")
	if c == "" {
		return "", ErrInvalidKey
	}
	return c, nil
}

// ContentTypeForKey guesses the media type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(s, ".tif"), strings.HasSuffix(s, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(s, ".heic"):
		return "image/heic"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// ExtForContentType is the inverse of ContentTypeForKey for image types.
func ExtForContentType(ct string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "image/heic":
		return ".heic"
	default:
		return ""
	}
}

// Inliner is implemented by stores whose signed URLs are not reachable by
// the model provider; images are then sent inline as data URLs.
type Inliner interface {
	InlineForModel() bool
}

const maxInlineBytes = 15 << 20

// ModelURL returns a URL the vision model can read the blob from: a data
// URL for inlining stores, a signed URL otherwise.
func ModelURL(ctx context.Context, bs BlobStore, key string, ttl time.Duration) (string, error) {
	if in, ok := bs.(Inliner); !ok || !in.InlineForModel() {
		return bs.SignedURL(ctx, key, ttl)
	}
	rc, err := bs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxInlineBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxInlineBytes {
		return "", fmt.Errorf("blob %s too large to inline", key)
	}
	return "data:" + ContentTypeForKey(key) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
