package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// extractJSON returns the first balanced {...} region of text. Braces inside
// string literals are ignored.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false

		for i := start; i < len(text); i++ {
			ch := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}

			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}

		// Unbalanced from this brace; try the next one.
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

type verdict struct {
	Score       float64
	Authentic   bool
	Explanation string
}

// parseVerdict enforces {"score": number, "isAuthentic": bool, "explanation": string}.
func parseVerdict(text string) (*verdict, error) {
	region, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidModelResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(region), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModelResponse, err)
	}

	var v verdict
	raw, ok := fields["isAuthentic"]
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: missing isAuthentic", ErrInvalidModelResponse)
	}
	if err := json.Unmarshal(raw, &v.Authentic); err != nil {
		return nil, fmt.Errorf("%w: isAuthentic is not a boolean", ErrInvalidModelResponse)
	}

	raw, ok = fields["score"]
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: missing score", ErrInvalidModelResponse)
	}
	if err := json.Unmarshal(raw, &v.Score); err != nil {
		return nil, fmt.Errorf("%w: score is not a number", ErrInvalidModelResponse)
	}
	v.Score = math.Max(0, math.Min(100, v.Score))

	if raw, ok := fields["explanation"]; ok {
		if err := json.Unmarshal(raw, &v.Explanation); err != nil {
			return nil, fmt.Errorf("%w: explanation is not a string", ErrInvalidModelResponse)
		}
	}
	return &v, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func parseSynthesis(text string) (*Synthesis, error) {
	region, ok := extractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidModelResponse)
	}

	var s Synthesis
	if err := json.Unmarshal([]byte(region), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModelResponse, err)
	}
	if strings.TrimSpace(s.Explanation) == "" {
		return nil, fmt.Errorf("%w: missing explanation", ErrInvalidModelResponse)
	}
	return &s, nil
}
