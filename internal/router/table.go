package router

import (
	"os"
	"strconv"
	"strings"

	"github.com/clduab11/pricehawk/internal/domain"
)

// DefaultModelTable returns the static pool the router loads at startup.
// Enablement for any entry can be overridden with
// MODEL_ENABLED_{UPPER_ID}=false, letting operators pull a misbehaving
// endpoint out of rotation without a redeploy.
func DefaultModelTable() []domain.ModelConfig {
	table := []domain.ModelConfig{
		{
			ID: "llama-3.1-70b-free", Name: "Llama 3.1 70B (free tier)", Provider: "openrouter",
			BaseWeight: 40, ContextWindow: 131072, Tier: domain.TierBase,
			SupportsTools: true, IsFree: true, TimeoutMS: 20000, Enabled: true,
		},
		{
			ID: "mixtral-8x7b-free", Name: "Mixtral 8x7B (free tier)", Provider: "openrouter",
			BaseWeight: 30, ContextWindow: 32768, Tier: domain.TierBase,
			SupportsTools: false, IsFree: true, TimeoutMS: 15000, Enabled: true,
		},
		{
			ID: "gemini-flash-free", Name: "Gemini 1.5 Flash (free tier)", Provider: "google",
			BaseWeight: 30, ContextWindow: 1048576, Tier: domain.TierMid,
			SupportsTools: true, IsFree: true, TimeoutMS: 15000, Enabled: true,
		},
		{
			ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: "openai",
			BaseWeight: 60, ContextWindow: 128000, Tier: domain.TierMid,
			SupportsTools: true, IsFree: false, TimeoutMS: 20000, Enabled: true,
		},
		{
			ID: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "anthropic",
			BaseWeight: 80, ContextWindow: 200000, Tier: domain.TierHigh,
			SupportsTools: true, IsFree: false, TimeoutMS: 30000, Enabled: true,
		},
		{
			ID: "gpt-4o", Name: "GPT-4o", Provider: "openai",
			BaseWeight: 75, ContextWindow: 128000, Tier: domain.TierHigh,
			SupportsTools: true, IsFree: false, TimeoutMS: 30000, Enabled: true,
		},
	}

	for i := range table {
		table[i].Enabled = table[i].Enabled && modelEnabledOverride(table[i].ID, true)
	}
	return table
}

func modelEnabledOverride(id string, fallback bool) bool {
	key := "MODEL_ENABLED_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
