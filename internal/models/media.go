package models

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeImage, MediaTypeVideo, MediaTypeAudio:
		return true
	}
	return false
}

// ParseMediaType accepts the bare kind ("image") used by dashboard filters.
func ParseMediaType(s string) (MediaType, error) {
	t := MediaType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unsupported media type %q", s)
	}
	return t, nil
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
}

// ContentTypeForFile guesses a MIME type from a file name.
func ContentTypeForFile(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// MediaTypeFromMIME derives the media kind from a MIME type prefix. When the
// MIME type is missing or generic the file extension is consulted instead.
func MediaTypeFromMIME(contentType, fileName string) (MediaType, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" || ct == "application/octet-stream" {
		ct = strings.ToLower(ContentTypeForFile(fileName))
	}

	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaTypeImage, nil
	case strings.HasPrefix(ct, "video/"):
		return MediaTypeVideo, nil
	case strings.HasPrefix(ct, "audio/"):
		return MediaTypeAudio, nil
	}
	return "", fmt.Errorf("unsupported content type %q for %s", contentType, fileName)
}

// MediaUpload is one submitted file. It is written once when the file enters
// the pipeline and updated once to point at its analysis report.
type MediaUpload struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	FileName         string    `gorm:"not null" bson:"fileName" json:"fileName"`
	MediaType        MediaType `gorm:"type:varchar(16);not null;index" bson:"mediaType" json:"mediaType"`
	ContentType      string    `bson:"contentType" json:"contentType"`
	Size             int64     `bson:"size" json:"size"`
	URL              string    `gorm:"not null" bson:"url" json:"url"`
	StoragePath      string    `bson:"storagePath,omitempty" json:"storagePath,omitempty"`
	FileID           string    `bson:"fileId,omitempty" json:"fileId,omitempty"`
	ContentHash      string    `gorm:"index" bson:"contentHash,omitempty" json:"contentHash,omitempty"`
	UploadDate       time.Time `gorm:"not null" bson:"uploadDate" json:"uploadDate"`
	CreatedAt        time.Time `gorm:"not null" bson:"createdAt" json:"createdAt"`
	AnalysisReportID *string   `gorm:"type:varchar(36)" bson:"analysisReportId,omitempty" json:"analysisReportId,omitempty"`
}

func (MediaUpload) TableName() string {
	return "media_uploads"
}

func NewMediaUpload(fileName string, mediaType MediaType, contentType string, size int64, url string) *MediaUpload {
	now := time.Now().UTC()
	return &MediaUpload{
		ID:          uuid.New().String(),
		FileName:    fileName,
		MediaType:   mediaType,
		ContentType: contentType,
		Size:        size,
		URL:         url,
		UploadDate:  now,
		CreatedAt:   now,
	}
}
