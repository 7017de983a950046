package ai

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{
			name:     "plain object",
			text:     `{"score": 80}`,
			expected: `{"score": 80}`,
			found:    true,
		},
		{
			name:     "wrapped in prose and fences",
			text:     "Here is my analysis:\n```json\n{\"score\": 10, \"isAuthentic\": false}\n```\nThanks",
			expected: `{"score": 10, "isAuthentic": false}`,
			found:    true,
		},
		{
			name:     "braces inside strings",
			text:     `{"explanation": "the logo reads {fake} and \"}\"", "score": 5}`,
			expected: `{"explanation": "the logo reads {fake} and \"}\"", "score": 5}`,
			found:    true,
		},
		{
			name:     "nested object",
			text:     `result: {"a": {"b": 1}} trailing {"c": 2}`,
			expected: `{"a": {"b": 1}}`,
			found:    true,
		},
		{
			name:     "unbalanced then balanced",
			text:     `{ broken { "ok": true }`,
			expected: `{ "ok": true }`,
			found:    true,
		},
		{
			name:  "no object",
			text:  "Confidence Score: 87\nExplanation: looks real",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.text)
			if ok != tt.found {
				t.Fatalf("expected found=%v, got %v", tt.found, ok)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantErr       bool
		wantScore     float64
		wantAuthentic bool
	}{
		{
			name:          "valid",
			text:          `{"score": 82.5, "isAuthentic": true, "explanation": "consistent lighting"}`,
			wantScore:     82.5,
			wantAuthentic: true,
		},
		{
			name:      "score clamped",
			text:      `{"score": 140, "isAuthentic": false}`,
			wantScore: 100,
		},
		{name: "no json", text: "Confidence Score: 90", wantErr: true},
		{name: "missing verdict", text: `{"score": 50, "explanation": "x"}`, wantErr: true},
		{name: "verdict as string", text: `{"score": 50, "isAuthentic": "yes"}`, wantErr: true},
		{name: "null verdict", text: `{"score": 50, "isAuthentic": null}`, wantErr: true},
		{name: "missing score", text: `{"isAuthentic": true}`, wantErr: true},
		{name: "score as string", text: `{"score": "high", "isAuthentic": true}`, wantErr: true},
		{name: "malformed", text: `{"score": 50, "isAuthentic": tru}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidModelResponse) {
					t.Fatalf("expected ErrInvalidModelResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Score != tt.wantScore {
				t.Errorf("expected score %v, got %v", tt.wantScore, v.Score)
			}
			if v.Authentic != tt.wantAuthentic {
				t.Errorf("expected isAuthentic %v, got %v", tt.wantAuthentic, v.Authentic)
			}
		})
	}
}

func TestParseSynthesis(t *testing.T) {
	s, err := parseSynthesis(`{"explanation": "Looks genuine.", "verificationTips": ["Reverse search", "Check source"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Explanation != "Looks genuine." || len(s.VerificationTips) != 2 {
		t.Errorf("unexpected synthesis %+v", s)
	}

	if _, err := parseSynthesis(`{"verificationTips": []}`); !errors.Is(err, ErrInvalidModelResponse) {
		t.Errorf("expected ErrInvalidModelResponse for missing explanation, got %v", err)
	}
}
