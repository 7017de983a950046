package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const imageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

type ImageKitConfig struct {
	PublicKey   string
	PrivateKey  string
	URLEndpoint string
	Folder      string
	// UploadURL overrides the upload API endpoint.
	UploadURL string
}

// ImageKitStorage uploads media to ImageKit's media library and serves it
// from the account's URL endpoint.
type ImageKitStorage struct {
	privateKey  string
	urlEndpoint string
	folder      string
	uploadURL   string
	httpClient  *http.Client
}

func NewImageKitStorage(cfg ImageKitConfig) *ImageKitStorage {
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = imageKitUploadURL
	}
	return &ImageKitStorage{
		privateKey:  cfg.PrivateKey,
		urlEndpoint: strings.TrimRight(cfg.URLEndpoint, "/"),
		folder:      cfg.Folder,
		uploadURL:   uploadURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type imageKitUploadResponse struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
	Message  string `json:"message"`
}

func (s *ImageKitStorage) Store(ctx context.Context, data []byte, info FileInfo) (*StoredObject, error) {
	name, err := UniqueName(info)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}
	writer.WriteField("fileName", name)
	writer.WriteField("folder", s.folder)
	writer.WriteField("useUniqueFileName", "false")
	if err := writer.Close(); err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.uploadURL, &body)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(s.privateKey, "")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: err}
	}

	var ikResp imageKitUploadResponse
	if err := json.Unmarshal(respBody, &ikResp); err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StorageError{Backend: "imagekit", Op: "store", Err: fmt.Errorf("status %d: %s", resp.StatusCode, ikResp.Message)}
	}

	return &StoredObject{
		URL:    ikResp.URL,
		Path:   strings.TrimPrefix(ikResp.FilePath, "/"),
		FileID: ikResp.FileID,
	}, nil
}

// Open fetches a stored file back through the URL endpoint.
func (s *ImageKitStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	cleanPath, err := cleanObjectPath(p)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "open", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.fileURL(cleanPath), nil)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "open", Err: err}
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &StorageError{Backend: "imagekit", Op: "open", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StorageError{Backend: "imagekit", Op: "open", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

// ThumbnailURL uses ImageKit's video thumbnail transformation, starting one
// second in.
func (s *ImageKitStorage) ThumbnailURL(obj StoredObject) string {
	if obj.Path == "" {
		return ""
	}
	return s.fileURL(obj.Path) + "/ik-thumbnail.jpg?tr=so-1"
}

func (s *ImageKitStorage) fileURL(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.urlEndpoint + "/" + strings.Join(segments, "/")
}
