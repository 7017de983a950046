package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FrameExtractor grabs still frames from video bytes with ffmpeg.
type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewFrameExtractor(logger *zap.Logger) (*FrameExtractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, _ := exec.LookPath("ffprobe")

	return &FrameExtractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}, nil
}

// StillFrame returns a JPEG of the frame one second in, or the first frame
// when the clip is shorter than that.
func (fe *FrameExtractor) StillFrame(ctx context.Context, video []byte, ext string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "mediaverify-video-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(video); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmp.Close()

	timestamp := 1.0
	if duration, err := fe.duration(ctx, tmp.Name()); err == nil && duration < timestamp {
		timestamp = 0
	}

	frame, err := fe.extractFrame(ctx, tmp.Name(), timestamp)
	if err != nil && timestamp > 0 {
		fe.logger.Debug("frame at 1s failed, retrying first frame", zap.Error(err))
		frame, err = fe.extractFrame(ctx, tmp.Name(), 0)
	}
	return frame, err
}

func (fe *FrameExtractor) duration(ctx context.Context, videoPath string) (float64, error) {
	if fe.ffprobePath == "" {
		return 0, fmt.Errorf("ffprobe not available")
	}
	cmd := exec.CommandContext(ctx, fe.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
}

func (fe *FrameExtractor) extractFrame(ctx context.Context, videoPath string, timestamp float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, fe.ffmpegPath,
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fe.logger.Debug("ffmpeg failed", zap.String("stderr", stderr.String()))
		return nil, fmt.Errorf("failed to extract frame at %.2f: %w", timestamp, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no frame at %.2f", timestamp)
	}

	return reencodeJPEG(stdout.Bytes())
}

// reencodeJPEG normalises decoder output to a baseline JPEG.
func reencodeJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
