package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiAPIURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-1.5-flash"
)

var geminiHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

type GeminiConfig struct {
	APIKey        string
	Model         string
	Timeout       time.Duration
	DisableSafety bool
	// BaseURL overrides the API root, used by tests.
	BaseURL string
}

type GeminiClient struct {
	apiKey        string
	model         string
	baseURL       string
	disableSafety bool
	httpClient    *http.Client
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		disableSafety: cfg.DisableSafety,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *GeminiClient) Name() string {
	return "gemini/" + c.model
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	SafetySettings   []geminiSafetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *googleError `json:"error"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *GeminiClient) Generate(ctx context.Context, r Request) (string, error) {
	parts := []geminiPart{{Text: r.Prompt}}
	for _, p := range r.Parts {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			},
		})
	}

	reqBody := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	}
	if c.disableSafety {
		for _, category := range geminiHarmCategories {
			reqBody.SafetySettings = append(reqBody.SafetySettings, geminiSafetySetting{
				Category:  category,
				Threshold: "BLOCK_NONE",
			})
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("Gemini API error: %s", geminiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API returned status %d", resp.StatusCode)
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", &BlockedError{Reason: geminiResp.PromptFeedback.BlockReason}
	}

	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates from Gemini", ErrInvalidModelResponse)
	}

	candidate := geminiResp.Candidates[0]
	switch candidate.FinishReason {
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "", &BlockedError{Reason: candidate.FinishReason}
	}

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
