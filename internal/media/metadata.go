package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"go.uber.org/zap"
)

// NoMetadata is returned whenever extraction fails for any reason.
const NoMetadata = "Could not extract metadata."

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".heic": true,
	".heif": true,
	".webp": true,
	".png":  true,
}

// Extractor produces a plain-text metadata summary for an uploaded file.
type Extractor struct {
	ffprobePath string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewExtractor never fails; without ffprobe on PATH audio and video files
// yield NoMetadata.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		logger.Warn("ffprobe not found, audio/video metadata disabled", zap.Error(err))
		ffprobePath = ""
	}
	return &Extractor{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
		logger:      logger,
	}
}

// Extract picks EXIF or ffprobe based on the extension of name, which may be
// a file name or a URL.
func (e *Extractor) Extract(ctx context.Context, data []byte, name string) string {
	ext := extensionOf(name)

	var (
		summary string
		err     error
	)
	if imageExtensions[ext] {
		summary, err = exifSummary(data)
	} else {
		summary, err = e.probe(ctx, data, ext)
	}
	if err != nil || strings.TrimSpace(summary) == "" {
		e.logger.Debug("metadata extraction failed", zap.String("name", name), zap.Error(err))
		return NoMetadata
	}
	return summary
}

func extensionOf(name string) string {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		name = u.Path
	}
	return strings.ToLower(path.Ext(name))
}

type tagCollector map[string]string

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c[string(name)] = strings.Trim(tag.String(), "\"")
	return nil
}

func exifSummary(data []byte) (string, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode exif: %w", err)
	}

	tags := tagCollector{}
	if err := x.Walk(tags); err != nil {
		return "", fmt.Errorf("failed to walk exif: %w", err)
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\n", name, tags[name])
	}
	return sb.String(), nil
}

func (e *Extractor) probe(ctx context.Context, data []byte, ext string) (string, error) {
	if e.ffprobePath == "" {
		return "", fmt.Errorf("ffprobe not available")
	}

	tmp, err := os.CreateTemp("", "mediaverify-probe-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		tmp.Name())

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffprobe failed: %w", err)
	}
	return stdout.String(), nil
}
