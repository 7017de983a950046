package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// LocalStorage keeps files on disk and exposes them under publicURL/media/.
type LocalStorage struct {
	basePath  string
	publicURL string
	folder    string
}

func NewLocalStorage(basePath, publicURL, folder string) (*LocalStorage, error) {
	if err := os.MkdirAll(filepath.Join(basePath, folder), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, publicURL: publicURL, folder: folder}, nil
}

func (ls *LocalStorage) Store(ctx context.Context, data []byte, info FileInfo) (*StoredObject, error) {
	name, err := UniqueName(info)
	if err != nil {
		return nil, &StorageError{Backend: "local", Op: "store", Err: err}
	}

	objectPath := path.Join(ls.folder, name)
	fullPath := filepath.Join(ls.basePath, filepath.FromSlash(objectPath))

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		os.Remove(fullPath)
		return nil, &StorageError{Backend: "local", Op: "store", Err: err}
	}

	return &StoredObject{
		URL:  ls.publicURL + "/media/" + objectPath,
		Path: objectPath,
	}, nil
}

func (ls *LocalStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return ls.OpenFile(p)
}

// OpenFile returns a seekable handle for range requests.
func (ls *LocalStorage) OpenFile(p string) (io.ReadSeekCloser, error) {
	cleanPath, err := cleanObjectPath(p)
	if err != nil {
		return nil, &StorageError{Backend: "local", Op: "open", Err: err}
	}

	file, err := os.Open(filepath.Join(ls.basePath, filepath.FromSlash(cleanPath)))
	if err != nil {
		return nil, &StorageError{Backend: "local", Op: "open", Err: err}
	}
	return file, nil
}
