package scoring

import (
	"math"

	"github.com/kdimtricp/mediaverify/internal/models"
)

const (
	AuthenticThreshold  = 70.0
	SuspiciousThreshold = 40.0
)

// Per-media-type aspect weights. These are fixed policy; changing sensitivity
// means changing these tables.
var weights = map[models.MediaType]map[string]float64{
	models.MediaTypeImage: {
		"visual":   0.7,
		"metadata": 0.3,
	},
	models.MediaTypeVideo: {
		"video":    0.6,
		"audio":    0.2,
		"metadata": 0.2,
	},
	models.MediaTypeAudio: {
		"audio":    0.8,
		"metadata": 0.2,
	},
}

type Result struct {
	Authenticity float64
	Fabrication  float64
	Status       models.ResultStatus
}

// Aspects lists the aspects that contribute to a media type's score.
func Aspects(mediaType models.MediaType) []string {
	switch mediaType {
	case models.MediaTypeImage:
		return []string{"visual", "metadata"}
	case models.MediaTypeVideo:
		return []string{"video", "audio", "metadata"}
	case models.MediaTypeAudio:
		return []string{"audio", "metadata"}
	}
	return nil
}

func Aggregate(scores models.Scores, mediaType models.MediaType) Result {
	w := weights[mediaType]

	authenticity := 0.0
	authenticity += w["visual"] * value(scores.Visual)
	authenticity += w["video"] * value(scores.Video)
	authenticity += w["audio"] * value(scores.Audio)
	authenticity += w["metadata"] * value(scores.Metadata)

	authenticity = clamp(authenticity)

	return Result{
		Authenticity: authenticity,
		Fabrication:  100 - authenticity,
		Status:       StatusFor(authenticity),
	}
}

func StatusFor(authenticity float64) models.ResultStatus {
	switch {
	case authenticity >= AuthenticThreshold:
		return models.StatusLikelyAuthentic
	case authenticity >= SuspiciousThreshold:
		return models.StatusSuspicious
	default:
		return models.StatusLikelyFabricated
	}
}

func value(score *float64) float64 {
	if score == nil || math.IsNaN(*score) {
		return 0
	}
	return *score
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(v, 100))
}
