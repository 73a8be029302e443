package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clduab11/pricehawk/internal/domain"
)

// modelVerdict is the strict shape a validation response must match. No
// schema-guided repair is attempted — a response missing a required field
// is rejected outright rather than patched.
type modelVerdict struct {
	IsGlitch   *bool   `json:"is_glitch"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	GlitchType string  `json:"glitch_type"`
}

// parseVerdict locates the first balanced `{...}` object in raw (tolerating
// surrounding prose a model might emit around the JSON), decodes it
// strictly, clamps confidence to [0,100], and requires is_glitch to be a
// present boolean.
func parseVerdict(raw string) (modelVerdict, error) {
	obj, err := firstBalancedObject(raw)
	if err != nil {
		return modelVerdict{}, err
	}

	var v modelVerdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return modelVerdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if v.IsGlitch == nil {
		return modelVerdict{}, fmt.Errorf("verdict missing required field is_glitch")
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}

	if v.GlitchType == "" {
		v.GlitchType = string(domain.GlitchUnknown)
	}

	return v, nil
}

// firstBalancedObject scans raw for the first top-level `{...}` span,
// tracking brace depth and skipping over braces inside string literals so
// prose or escaped quotes in reasoning text cannot desynchronize it.
func firstBalancedObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		ch := raw[i]

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
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}
