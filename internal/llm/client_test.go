package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json untouched", `{"subject":"hi"}`, `{"subject":"hi"}`},
		{"json fence stripped", "```json\n{\"subject\":\"hi\"}\n```", `{"subject":"hi"}`},
		{"bare fence stripped", "```\n{\"subject\":\"hi\"}\n```", `{"subject":"hi"}`},
		{"surrounding whitespace trimmed", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSONBlock(tt.input))
		})
	}
}

func TestGetModelFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", cfg.GetModel(TierStandard))

	// Unknown tiers fall back to standard, then lite
	assert.Equal(t, "gemini-2.5-flash", cfg.GetModel(ModelTier("pro")))

	liteOnly := &Config{Models: map[ModelTier]string{TierLite: "gemini-2.5-flash-lite"}}
	assert.Equal(t, "gemini-2.5-flash-lite", liteOnly.GetModel(TierStandard))

	empty := &Config{}
	assert.Equal(t, "", empty.GetModel(TierStandard))
}
