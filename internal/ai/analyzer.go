package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Analyzer turns a vendor Model into per-aspect authenticity verdicts.
type Analyzer struct {
	model       Model
	maxAttempts int
	logger      *zap.Logger
}

func NewAnalyzer(model Model, maxAttempts int, logger *zap.Logger) *Analyzer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{model: model, maxAttempts: maxAttempts, logger: logger}
}

func (a *Analyzer) ModelName() string {
	return a.model.Name()
}

// Analyze asks the model for one aspect. Only contract violations are
// retried; transport errors and safety blocks are returned at once.
func (a *Analyzer) Analyze(ctx context.Context, aspect Aspect, in MediaInput) (*AspectResult, error) {
	if _, ok := aspectInstructions[aspect]; !ok {
		return nil, fmt.Errorf("unknown aspect %q", aspect)
	}

	parts := mediaParts(aspect, in)
	req := Request{
		Prompt: aspectPrompt(aspect, in, len(parts) > 0),
		Parts:  parts,
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		raw, err := a.model.Generate(ctx, req)
		if err == nil {
			var v *verdict
			v, err = parseVerdict(raw)
			if err == nil {
				return &AspectResult{
					Aspect:      aspect,
					Score:       v.Score,
					Authentic:   v.Authentic,
					Explanation: v.Explanation,
					Raw:         raw,
				}, nil
			}
		}

		lastErr = err
		if !errors.Is(err, ErrInvalidModelResponse) {
			break
		}
		a.logger.Warn("model reply rejected",
			zap.String("aspect", string(aspect)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("%s analysis failed: %w", aspect, lastErr)
}

// Synthesize never fails; any problem yields placeholder text.
func (a *Analyzer) Synthesize(ctx context.Context, in SynthesisInput) Synthesis {
	raw, err := a.model.Generate(ctx, Request{Prompt: synthesisPrompt(in)})
	if err == nil {
		var s *Synthesis
		if s, err = parseSynthesis(raw); err == nil {
			return *s
		}
	}

	a.logger.Warn("explanation synthesis failed, using placeholder", zap.Error(err))
	return fallbackSynthesis(string(in.Status))
}

func mediaParts(aspect Aspect, in MediaInput) []Part {
	var parts []Part
	switch aspect {
	case AspectVisual:
		if len(in.Data) > 0 {
			parts = append(parts, Part{MIMEType: in.mimeType(), Data: in.Data})
		} else if len(in.Frame) > 0 {
			parts = append(parts, Part{MIMEType: "image/jpeg", Data: in.Frame})
		}
	case AspectVideo:
		if len(in.Data) > 0 {
			parts = append(parts, Part{MIMEType: in.mimeType(), Data: in.Data})
		}
		if len(in.Frame) > 0 {
			parts = append(parts, Part{MIMEType: "image/jpeg", Data: in.Frame})
		}
	case AspectAudio:
		if len(in.Data) > 0 {
			mimeType := in.mimeType()
			// Video containers are sent as-is so the model can hear the track.
			if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/") {
				break
			}
			parts = append(parts, Part{MIMEType: mimeType, Data: in.Data})
		}
	}
	return parts
}
