package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// StoredObject locates bytes persisted by a backend. Path is backend-relative
// and can be handed back to Open; FileID is only set by vendors that issue one.
type StoredObject struct {
	URL    string
	Path   string
	FileID string
}

type Storage interface {
	Store(ctx context.Context, data []byte, info FileInfo) (*StoredObject, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Thumbnailer is implemented by backends that can derive a still JPEG of a
// stored video on the fly.
type Thumbnailer interface {
	ThumbnailURL(obj StoredObject) string
}

// StorageError reports a rejected or failed call to a storage backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

var mimeExtensions = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"audio/x-wav":      ".wav",
	"audio/ogg":        ".ogg",
}

// ExtensionFor picks the stored file extension, preferring the MIME type over
// the client supplied name.
func ExtensionFor(info FileInfo) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(info.ContentType, ";")[0]))
	if ext, ok := mimeExtensions[ct]; ok {
		return ext
	}
	return strings.ToLower(filepath.Ext(info.Filename))
}

// UniqueName returns "<uuid><ext>" or an error when no extension is known.
func UniqueName(info FileInfo) (string, error) {
	ext := ExtensionFor(info)
	if ext == "" {
		return "", fmt.Errorf("could not determine file extension for %q (%s)", info.Filename, info.ContentType)
	}
	return uuid.New().String() + ext, nil
}

func cleanObjectPath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	if strings.Contains(p, "..") {
		return "", fmt.Errorf("invalid path")
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
