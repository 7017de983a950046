package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kdimtricp/mediaverify/internal/config"
	"github.com/kdimtricp/mediaverify/internal/models"
)

var (
	// ErrInvalidModelResponse means the model reply did not honour the JSON
	// response contract.
	ErrInvalidModelResponse = errors.New("invalid model response")
	// ErrAnalysisBlocked is matched by every *BlockedError.
	ErrAnalysisBlocked = errors.New("analysis blocked by provider")
)

// BlockedError carries the vendor's reason for refusing a request.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("analysis blocked by provider: %s", e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrAnalysisBlocked
}

// Part is an inline media attachment.
type Part struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	Prompt string
	Parts  []Part
}

// Model is a single generative AI vendor endpoint returning raw text.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// NewModel builds the client for the configured provider.
func NewModel(cfg config.AIConfig) (Model, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return NewGeminiClient(GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			Model:         cfg.GeminiModel,
			Timeout:       cfg.RequestTimeout,
			DisableSafety: cfg.DisableSafety,
		}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.RequestTimeout,
		}), nil
	}
	return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
}

type Aspect string

const (
	AspectVisual   Aspect = "visual"
	AspectVideo    Aspect = "video"
	AspectAudio    Aspect = "audio"
	AspectMetadata Aspect = "metadata"
)

// MediaInput is everything known about one file when it is analysed.
type MediaInput struct {
	MediaType models.MediaType
	MIMEType  string
	FileName  string
	URL       string
	Data      []byte
	// Frame is an optional JPEG still of a video.
	Frame    []byte
	Metadata string
}

func (in MediaInput) mimeType() string {
	if in.MIMEType != "" && !strings.HasPrefix(in.MIMEType, "application/octet-stream") {
		return in.MIMEType
	}
	return models.ContentTypeForFile(in.FileName)
}

type AspectResult struct {
	Aspect      Aspect  `json:"aspect"`
	Score       float64 `json:"score"`
	Authentic   bool    `json:"isAuthentic"`
	Explanation string  `json:"explanation"`
	Raw         string  `json:"-"`
}

type SynthesisInput struct {
	MediaType    models.MediaType
	FileName     string
	Scores       models.Scores
	Authenticity float64
	Status       models.ResultStatus
	Findings     map[string]string
}

type Synthesis struct {
	Explanation      string   `json:"explanation"`
	VerificationTips []string `json:"verificationTips"`
}
