package validator

import "testing"

func TestParseVerdictProseWrapped(t *testing.T) {
	raw := "Sure, here's my analysis:\n```json\n{\"is_glitch\": true, \"confidence\": 92, \"reasoning\": \"price is 1/100th of MSRP\", \"glitch_type\": \"decimal_error\"}\n```\nLet me know if you need more."
	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if v.IsGlitch == nil || !*v.IsGlitch {
		t.Fatalf("is_glitch = %v, want true", v.IsGlitch)
	}
	if v.Confidence != 92 {
		t.Fatalf("confidence = %v, want 92", v.Confidence)
	}
	if v.GlitchType != "decimal_error" {
		t.Fatalf("glitch_type = %q, want decimal_error", v.GlitchType)
	}
}

func TestParseVerdictMissingIsGlitchErrors(t *testing.T) {
	raw := `{"confidence": 80, "reasoning": "looks odd"}`
	if _, err := parseVerdict(raw); err == nil {
		t.Fatalf("expected an error for missing is_glitch, got nil")
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"above 100", `{"is_glitch": true, "confidence": 150}`, 100},
		{"below 0", `{"is_glitch": false, "confidence": -20}`, 0},
		{"in range", `{"is_glitch": false, "confidence": 45.5}`, 45.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := parseVerdict(tc.raw)
			if err != nil {
				t.Fatalf("parseVerdict: %v", err)
			}
			if v.Confidence != tc.want {
				t.Errorf("confidence = %v, want %v", v.Confidence, tc.want)
			}
		})
	}
}

func TestParseVerdictDefaultsGlitchType(t *testing.T) {
	v, err := parseVerdict(`{"is_glitch": true, "confidence": 70}`)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if v.GlitchType != "unknown" {
		t.Fatalf("glitch_type = %q, want unknown default", v.GlitchType)
	}
}

func TestFirstBalancedObjectSkipsBracesInStrings(t *testing.T) {
	raw := `noise {"reasoning": "contains a { brace } inside a string", "is_glitch": false, "confidence": 10} trailing`
	obj, err := firstBalancedObject(raw)
	if err != nil {
		t.Fatalf("firstBalancedObject: %v", err)
	}
	v, err := parseVerdict(obj)
	if err != nil {
		t.Fatalf("parseVerdict on extracted object: %v", err)
	}
	if v.IsGlitch == nil || *v.IsGlitch {
		t.Fatalf("is_glitch = %v, want false", v.IsGlitch)
	}
}

func TestFirstBalancedObjectNoObjectErrors(t *testing.T) {
	if _, err := firstBalancedObject("no json here at all"); err == nil {
		t.Fatalf("expected an error when no object is present")
	}
}
